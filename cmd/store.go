package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/viper"

	"github.com/seatwise/seatctl/internal/identity"
	"github.com/seatwise/seatctl/internal/store"
)

// openStore returns the configured Store. Tests replace it.
var openStore = func(ctx context.Context) (store.Store, error) {
	if path := viper.GetString("fixture"); path != "" {
		return openFixture(path)
	}
	return store.NewFirestore(ctx, store.FirestoreConfig{
		ProjectID:       GetProjectID(),
		DatabaseID:      viper.GetString("database"),
		CredentialsFile: GetCredentialsFile(),
		BatchSize:       viper.GetInt("batch_size"),
	})
}

// openAuthResolver returns the Firebase Auth lookup used by --auth. Tests
// replace it.
var openAuthResolver = func(ctx context.Context) (identity.Resolver, error) {
	return identity.NewFirebaseAuth(ctx, GetProjectID(), GetCredentialsFile())
}

// fixtureStore persists a Memory store back to its JSON file on Close.
type fixtureStore struct {
	*store.Memory
	path string
}

func openFixture(path string) (*fixtureStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixture: %w", err)
	}
	defer f.Close()

	mem, err := store.LoadFixture(f)
	if err != nil {
		return nil, err
	}
	slog.Debug("using fixture", "path", path)
	return &fixtureStore{Memory: mem, path: path}, nil
}

func (s *fixtureStore) Close() error {
	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to save fixture: %w", err)
	}
	if err := s.WriteFixture(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to save fixture: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
