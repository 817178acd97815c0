package store

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// Set PRSCORE_TEST_POSTGRES_DSN to run against a live database.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("PRSCORE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PRSCORE_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	s, err := NewPostgresStore(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Migrate(ctx), "migrate should be idempotent")

	runStoreSuite(t, s)
}
