package client

import "errors"

// errUnexpectedConnected is the protocol-error cause recorded when a
// CONNECTED frame arrives mid-stream, after the initial handshake — spec
// §4.6 treats this as fatal to the current connection, not to the client.
var errUnexpectedConnected = errors.New("client: unexpected CONNECTED frame mid-stream")

// errClientDisconnected is the reason recorded against the active
// connection when Disconnect tears it down deliberately.
var errClientDisconnected = errors.New("client: disconnected")
