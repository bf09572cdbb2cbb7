package bundle

import (
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/iota-runtime/errors"
)

// DefaultMain is the module artifact name used when the manifest leaves
// main unset.
const DefaultMain = "main.bin"

// ManifestName is the manifest file expected at the bundle root.
const ManifestName = "iota.yaml"

// Manifest is the on-disk bundle descriptor.
type Manifest struct {
	// ID identifies the bundle. Required unless an authenticity token
	// supplies the identity.
	ID string `yaml:"id" validate:"omitempty,min=1"`

	// Version is the bundle version string.
	Version string `yaml:"version" validate:"omitempty,min=1"`

	// Main names the module artifact, relative to the bundle root.
	// Defaults to main.bin.
	Main string `yaml:"main,omitempty"`

	// Interface optionally names a machine-readable interface artifact.
	Interface string `yaml:"interface,omitempty"`
}

// validate is package-level; constructing a validator per call is expensive.
var validate = validator.New()

// ParseManifest parses and validates manifest bytes. Identity fields may be
// empty here; Load enforces presence once token claims are known.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(errors.PhaseBundle, errors.KindMalformed, err, "parse manifest")
	}
	if err := validate.Struct(&m); err != nil {
		return nil, errors.Wrap(errors.PhaseBundle, errors.KindValidation, err, "validate manifest")
	}
	if m.Main == "" {
		m.Main = DefaultMain
	}
	return &m, nil
}
