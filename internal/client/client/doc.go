// Package client talks to a keepershare server on behalf of the keeper CLI.
//
// GRPCClient calls VaultService with the access token attached to every
// request and maps gRPC status codes back onto the sentinel errors of the
// common package, so callers match them with errors.Is exactly as server code
// does. LinkClient opens ephemeral share links over plain HTTP and needs no
// token.
package client
