// Package artifact defines the on-disk containers kiln reads and writes: a
// source container holding a bytecode module with its function bodies, and
// a compiled container holding everything a host needs to load the compile
// output without recompiling. Both use canonical CBOR so equal inputs
// produce byte-identical files.
package artifact

import (
	"errors"
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
	"github.com/fxamacker/cbor/v2"

	"github.com/kiln-lang/kiln/internal/codegen"
	"github.com/kiln-lang/kiln/internal/debug"
	"github.com/kiln-lang/kiln/internal/isa"
	"github.com/kiln-lang/kiln/internal/module"
)

// FormatVersion is stamped into every compiled container this build
// writes. Readers accept the same major version up to this minor.
const FormatVersion = "1.1.0"

// ErrIncompatibleFormat rejects compiled containers this build cannot
// safely interpret.
var ErrIncompatibleFormat = errors.New("incompatible compiled-artifact format")

var (
	cborEncMode   cbor.EncMode
	formatVersion *semver.Version
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("artifact: CBOR enc mode: %v", err))
	}
	cborEncMode = em
	formatVersion = semver.MustParse(FormatVersion)
}

// Source is the input container: one bytecode module plus its function
// bodies, indexed like Module.Funcs.
type Source struct {
	Module module.Module         `cbor:"module"`
	Bodies []module.FunctionBody `cbor:"bodies"`
}

// Compiled is the output container. Slices are indexed by defined-function
// position; the debug collections are empty unless debug info was
// requested at compile time.
type Compiled struct {
	FormatVersion string                   `cbor:"format_version"`
	Arch          isa.Arch                 `cbor:"arch"`
	Code          [][]byte                 `cbor:"code"`
	Relocs        [][]codegen.Relocation   `cbor:"relocs"`
	AddressMaps   []codegen.FuncAddressMap `cbor:"address_maps,omitempty"`
	FrameLayouts  []codegen.FrameLayout    `cbor:"frame_layouts,omitempty"`
	FrameTable    []byte                   `cbor:"frame_table,omitempty"`
	FrameRelocs   []debug.RelocationSlot   `cbor:"frame_relocs,omitempty"`
}

// CheckFormatVersion reports whether a compiled container produced with
// version v can be read by this build: same major, and not newer than this
// build's own format version.
func CheckFormatVersion(v string) error {
	ver, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("%w: bad version %q: %v", ErrIncompatibleFormat, v, err)
	}
	if ver.Major() != formatVersion.Major() {
		return fmt.Errorf("%w: artifact %s, reader %s", ErrIncompatibleFormat, v, FormatVersion)
	}
	if ver.GreaterThan(formatVersion) {
		return fmt.Errorf("%w: artifact %s was written by a newer compiler than %s", ErrIncompatibleFormat, v, FormatVersion)
	}

	return nil
}

// MarshalSource serializes a source container.
func MarshalSource(s *Source) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// UnmarshalSource deserializes a source container.
func UnmarshalSource(data []byte) (*Source, error) {
	var s Source
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("artifact: unmarshal source: %w", err)
	}

	return &s, nil
}

// MarshalCompiled serializes a compiled container, stamping the current
// format version when none is set.
func MarshalCompiled(c *Compiled) ([]byte, error) {
	if c.FormatVersion == "" {
		stamped := *c
		stamped.FormatVersion = FormatVersion
		return cborEncMode.Marshal(&stamped)
	}

	return cborEncMode.Marshal(c)
}

// UnmarshalCompiled deserializes a compiled container and enforces the
// format gate.
func UnmarshalCompiled(data []byte) (*Compiled, error) {
	var c Compiled
	if err := cbor.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("artifact: unmarshal compiled: %w", err)
	}
	if err := CheckFormatVersion(c.FormatVersion); err != nil {
		return nil, err
	}

	return &c, nil
}

// ReadSource loads a source container from disk.
func ReadSource(path string) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("artifact: read %s: %w", path, err)
	}

	return UnmarshalSource(data)
}

// WriteCompiled writes a compiled container to disk.
func WriteCompiled(path string, c *Compiled) error {
	data, err := MarshalCompiled(c)
	if err != nil {
		return fmt.Errorf("artifact: marshal compiled: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}
