package types

// Every websocket frame is one JSON object: {"name": <tag>, ...payload}.
// Tags are numbers; the server also accepts the symbolic name as a string.
//
// Client -> Server
// 0 REQUEST_CAMERA_RESPONSE: ignored
//
// 1 REQUEST_MOUSE_CONTROL: {}
//
// 2 MOUSE_LOCK_RELEASED: {}
//
// 3 MOUSE_POS_UPDATE:
//   posX: number
//   posY: number
//   isDragging: boolean
//   cameraPos: {x, y, z}    // applied only from the lock owner while dragging
//   cameraTarget: {x, y, z}
//
// 4 I_AM_HERE: {}            // answer to ARE_YOU_THERE

// Server -> Client
// 0 YOUR_INFO (joiner only):
//   playerId: string
//   cameraPos: {x, y, z}
//   cameraTarget: {x, y, z}
//
// 1 CAMERA_UPDATE:
//   cameraPos: {x, y, z}
//   cameraTarget: {x, y, z}
//
// 2 MOUSE_PLAYER_LOCKED:
//   playerId: string
//
// 3 MOUSE_LOCK_RELEASED:
//   playerId: string
//
// 4 MOUSE_POS_UPDATE:
//   playerId: string
//   posX: number
//   posY: number
//   isDragging: boolean
//
// 5 PLAYER_CONNECTED:
//   playerId: string
//
// 6 PLAYER_DISCONNECTED:
//   playerId: string
//
// 7 ARE_YOU_THERE: {}        // idle nudge; silence past the drop window disconnects
//
// 8 MOUSE_LOCK_DENIED (requester only):
//   access: "denied"
