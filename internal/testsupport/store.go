package testsupport

import (
	"context"
	"testing"

	"podbay/internal/config"
	"podbay/internal/metadata"
)

// MustOpenStore opens the metadata store at the config's database path and
// registers cleanup. Fails the test on any open error.
func MustOpenStore(t testing.TB, cfg *config.Config) *metadata.Store {
	t.Helper()
	store, err := metadata.Open(context.Background(), cfg.Paths.Database)
	if err != nil {
		t.Fatalf("open metadata store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
