package bundle

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/wippyai/iota-runtime/errors"
)

// Token carries the authenticity claims attached to a bundle. Claims are
// binding statements about the artifacts: when present they override the
// manifest's identity, and any disagreement fails validation.
//
// Tokens arrive pre-verified. Signature checking belongs to the layer that
// issued the token, not to bundle loading.
type Token struct {
	ID              string `cbor:"id"`
	Version         string `cbor:"version"`
	ModuleSHA256    []byte `cbor:"moduleSha256"`
	InterfaceSHA256 []byte `cbor:"interfaceSha256,omitempty"`
}

// ParseToken decodes CBOR token claims.
func ParseToken(data []byte) (*Token, error) {
	var t Token
	if err := cbor.Unmarshal(data, &t); err != nil {
		return nil, errors.Wrap(errors.PhaseBundle, errors.KindMalformed, err, "parse token")
	}
	if t.ID == "" {
		return nil, errors.Validation("token claims missing id")
	}
	if len(t.ModuleSHA256) == 0 {
		return nil, errors.Validation("token claims missing module digest")
	}
	return &t, nil
}
