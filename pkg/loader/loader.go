// Package loader decodes contract profiles and overlay patches from YAML,
// JSON and HCL documents.
package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/artifacts"
	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/contracts"
)

// Format is a document encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatHCL  Format = "hcl"
)

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".hcl":
		return FormatHCL, nil
	default:
		return "", fmt.Errorf("unsupported document extension: %s", path)
	}
}

// DecodeProfile decodes a base profile. name labels diagnostics.
func DecodeProfile(data []byte, format Format, name string) (*contracts.ContractProfile, error) {
	var p contracts.ContractProfile
	var err error
	switch format {
	case FormatYAML:
		err = decodeYAML(data, &p)
	case FormatJSON:
		err = decodeJSON(data, &p)
	case FormatHCL:
		err = decodeHCLProfile(data, name, &p)
	default:
		err = fmt.Errorf("unsupported format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", name, err)
	}
	if err := normalizeFields(&p); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", name, err)
	}
	return &p, nil
}

// DecodePatch decodes one overlay patch. Patch validation is left to the
// merge engine so that all patch errors surface in one place.
func DecodePatch(data []byte, format Format, name string) (*contracts.ContractPatch, error) {
	var p contracts.ContractPatch
	var err error
	switch format {
	case FormatYAML:
		err = decodeYAML(data, &p)
	case FormatJSON:
		err = decodeJSON(data, &p)
	case FormatHCL:
		err = decodeHCLPatch(data, name, &p)
	default:
		err = fmt.Errorf("unsupported format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("decode patch %s: %w", name, err)
	}
	normalizePatch(&p)
	return &p, nil
}

func decodeYAML(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func decodeJSON(data []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

// normalizePatch applies FieldPath.Normalize to every operation path. The
// merge engine validates the result.
func normalizePatch(p *contracts.ContractPatch) {
	for i := range p.Operations {
		p.Operations[i].Path = p.Operations[i].Path.Normalize()
	}
}

// normalizeFields re-keys fields by their NFC-normalized, validated path.
func normalizeFields(p *contracts.ContractProfile) error {
	if len(p.Fields) == 0 {
		return nil
	}
	out := make(map[contracts.FieldPath]contracts.Value, len(p.Fields))
	for raw, v := range p.Fields {
		path, err := contracts.ParseFieldPath(string(raw))
		if err != nil {
			return err
		}
		if _, dup := out[path]; dup {
			return fmt.Errorf("field %s is declared twice after normalization", path)
		}
		out[path] = v
	}
	p.Fields = out
	return nil
}

// LoadProfile reads a profile document from disk.
func LoadProfile(path string) (*contracts.ContractProfile, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return DecodeProfile(data, format, path)
}

// LoadPatch reads a patch document from disk.
func LoadPatch(path string) (*contracts.ContractPatch, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return DecodePatch(data, format, path)
}

// Bundle is a base profile and the overlays found next to it.
type Bundle struct {
	Dir     string
	Base    *contracts.ContractProfile
	Patches []contracts.ContractPatch
}

// ProfileBaseName is the file stem of the base profile inside a bundle.
const ProfileBaseName = "contract"

// LoadDir loads a bundle directory: one contract.{yaml,yml,json,hcl} base
// and any number of patch documents under patches/, read in name order.
func LoadDir(ctx context.Context, dir string) (*Bundle, error) {
	logger := slog.Default().With("component", "loader")

	var basePath string
	for _, ext := range []string{".yaml", ".yml", ".json", ".hcl"} {
		candidate := filepath.Join(dir, ProfileBaseName+ext)
		if _, err := os.Stat(candidate); err == nil {
			if basePath != "" {
				return nil, fmt.Errorf("bundle %s has more than one base profile", dir)
			}
			basePath = candidate
		}
	}
	if basePath == "" {
		return nil, fmt.Errorf("bundle %s has no %s.{yaml,yml,json,hcl}", dir, ProfileBaseName)
	}
	base, err := LoadProfile(basePath)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(filepath.Join(dir, "patches"))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read patches: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, err := FormatFromPath(e.Name()); err == nil {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	b := &Bundle{Dir: dir, Base: base}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := LoadPatch(filepath.Join(dir, "patches", name))
		if err != nil {
			return nil, err
		}
		b.Patches = append(b.Patches, *p)
	}
	logger.DebugContext(ctx, "bundle loaded", "dir", dir, "contract", base.Name, "patches", len(b.Patches))
	return b, nil
}

// LoadProfileFromStore fetches a profile document by digest.
func LoadProfileFromStore(ctx context.Context, store artifacts.Store, digest string, format Format) (*contracts.ContractProfile, error) {
	data, err := store.Get(ctx, digest)
	if err != nil {
		return nil, err
	}
	return DecodeProfile(data, format, digest)
}

// LoadPatchFromStore fetches a patch document by digest.
func LoadPatchFromStore(ctx context.Context, store artifacts.Store, digest string, format Format) (*contracts.ContractPatch, error) {
	data, err := store.Get(ctx, digest)
	if err != nil {
		return nil, err
	}
	return DecodePatch(data, format, digest)
}
