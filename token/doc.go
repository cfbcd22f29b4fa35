// Package token provides pure structural judgment of bearer tokens.
//
// Structural validity means conformance to the JWT shape — three segments,
// decodable header and payload, an expiry claim present — independent of
// signature verification. The server owns signatures; this package only
// decides whether a locally held token is worth presenting at all.
//
// All functions fail closed: any decode error yields false/zero, never a
// panic or an error value.
package token
