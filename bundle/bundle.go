package bundle

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/wippyai/iota-runtime/errors"
)

// Bundle is a loaded, validated artifact set ready for instantiation.
type Bundle struct {
	// ID and Version are the effective identity: token claims when a token
	// was supplied, manifest fields otherwise.
	ID      string
	Version string

	Manifest *Manifest

	// Module holds the guest module bytes.
	Module []byte

	// Interface holds the optional interface artifact bytes, nil when the
	// bundle carries none.
	Interface []byte
}

// Load reads a bundle directory without authenticity claims. The manifest
// must carry the identity itself.
func Load(dir string) (*Bundle, error) {
	return load(dir, nil)
}

// LoadWithToken reads a bundle directory and binds it to CBOR token claims.
// Token identity overrides the manifest; artifact digests must match the
// claims exactly.
func LoadWithToken(dir string, token []byte) (*Bundle, error) {
	t, err := ParseToken(token)
	if err != nil {
		return nil, err
	}
	return load(dir, t)
}

func load(dir string, token *Token) (*Bundle, error) {
	raw, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseBundle, errors.KindNotFound, err, "read manifest")
	}
	m, err := ParseManifest(raw)
	if err != nil {
		return nil, err
	}

	module, err := os.ReadFile(filepath.Join(dir, m.Main))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseBundle, errors.KindNotFound, err, "read module artifact")
	}

	var iface []byte
	if m.Interface != "" {
		iface, err = os.ReadFile(filepath.Join(dir, m.Interface))
		if err != nil {
			return nil, errors.Wrap(errors.PhaseBundle, errors.KindNotFound, err, "read interface artifact")
		}
	}

	b := &Bundle{ID: m.ID, Version: m.Version, Manifest: m, Module: module, Interface: iface}

	if token != nil {
		if err := bindToken(b, token); err != nil {
			return nil, err
		}
	} else if b.ID == "" {
		return nil, errors.Validation("manifest missing id and no token supplied")
	}

	logger().Debug("bundle loaded",
		zap.String("id", b.ID),
		zap.String("version", b.Version),
		zap.Int("module_bytes", len(b.Module)),
		zap.Bool("has_interface", b.Interface != nil))
	return b, nil
}

// bindToken enforces the claims against the loaded artifacts. Identity
// disagreement and digest mismatch are both validation failures, never
// silently resolved.
func bindToken(b *Bundle, t *Token) error {
	if b.Manifest.ID != "" && b.Manifest.ID != t.ID {
		return errors.Validation("manifest id disagrees with token claims")
	}
	if b.Manifest.Version != "" && t.Version != "" && b.Manifest.Version != t.Version {
		return errors.Validation("manifest version disagrees with token claims")
	}

	if sum := sha256.Sum256(b.Module); !bytes.Equal(sum[:], t.ModuleSHA256) {
		return errors.New(errors.PhaseBundle, errors.KindValidation).
			Detail("module digest mismatch: have %s", hex.EncodeToString(sum[:8])).
			Build()
	}
	if len(t.InterfaceSHA256) > 0 {
		if b.Interface == nil {
			return errors.Validation("token claims an interface artifact the bundle does not carry")
		}
		if sum := sha256.Sum256(b.Interface); !bytes.Equal(sum[:], t.InterfaceSHA256) {
			return errors.Validation("interface digest mismatch")
		}
	}

	b.ID = t.ID
	if t.Version != "" {
		b.Version = t.Version
	}
	return nil
}
