package verifier

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/artifacts"
	"github.com/OmniNode-ai/omnibase-core-sub046/pkg/contracts"
)

// ErrFixtureMissing reports a declared fixture the source cannot produce.
var ErrFixtureMissing = errors.New("fixture missing")

// FixtureSource resolves declared fixtures to their bytes.
type FixtureSource interface {
	Fixture(ctx context.Context, ref contracts.FixtureRef) ([]byte, error)
}

// DirFixtures reads fixtures relative to a root directory. Paths may not
// escape the root.
type DirFixtures string

func (d DirFixtures) Fixture(ctx context.Context, ref contracts.FixtureRef) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clean := filepath.Clean(filepath.FromSlash(ref.Path))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("fixture path %q escapes the fixture root", ref.Path)
	}
	data, err := os.ReadFile(filepath.Join(string(d), clean)) //nolint:gosec // confined to root above
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrFixtureMissing, ref.Path)
	}
	return data, err
}

// StoreFixtures resolves fixtures by digest from a content-addressed store.
func StoreFixtures(s artifacts.Store) FixtureSource {
	return storeFixtures{store: s}
}

type storeFixtures struct {
	store artifacts.Store
}

func (s storeFixtures) Fixture(ctx context.Context, ref contracts.FixtureRef) ([]byte, error) {
	if ref.Digest == "" {
		return nil, fmt.Errorf("fixture %s has no digest to look up", ref.Path)
	}
	data, err := s.store.Get(ctx, ref.Digest)
	if errors.Is(err, artifacts.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s (%s)", ErrFixtureMissing, ref.Path, ref.Digest)
	}
	return data, err
}

// MapFixtures serves fixtures from memory, keyed by path.
type MapFixtures map[string][]byte

func (m MapFixtures) Fixture(_ context.Context, ref contracts.FixtureRef) ([]byte, error) {
	data, ok := m[ref.Path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFixtureMissing, ref.Path)
	}
	return data, nil
}
