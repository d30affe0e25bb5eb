// Package auth verifies bearer tokens for the operator API and enforces
// scopes on its routes.
//
// Tokens are JWTs signed with HS256 (shared secret) or RS256 (PEM public
// key). The read scope grants the state snapshot, the telemetry scope the
// event stream and the control scope the flight routes.
package auth
