// Package bundle loads guest artifacts and binds them to authenticity
// claims.
//
// A bundle is a directory holding an iota.yaml manifest, the module bytes
// named by main (main.bin when unset) and an optional interface artifact.
// LoadWithToken additionally consumes CBOR token claims: the token's
// identity overrides the manifest and every claimed artifact digest must
// match, so a tampered or mismatched bundle never reaches instantiation.
package bundle
