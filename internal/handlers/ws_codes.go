// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the game handlers. These give clients
// a more specific reason for closure than the standard codes.
const (
	BadSubprotocolError   = 3000 // client connected with an unsupported subprotocol
	InvalidAuthTokenError = 3001 // auth token was invalid or expired
	NotSeatedError        = 3002 // authenticated player is not seated in the session
	InvalidSessionIDError = 3003 // session id in the WS URL is malformed or unknown
)
