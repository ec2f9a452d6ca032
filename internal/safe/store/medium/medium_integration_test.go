//go:build integration

package medium

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"

	"digisafe/pkg/testutil/containers"
)

func TestRedisIntegration(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	require.NoError(t, rc.FlushAll(context.Background()))

	m, err := NewRedis(rc.Client, "digisafe:test:medium", 64)
	require.NoError(t, err)
	exerciseMedium(t, m, 64)
}

func TestPostgresIntegration(t *testing.T) {
	pc := containers.NewPostgresContainer(t)

	db, err := sql.Open("pgx", pc.DSN)
	require.NoError(t, err)
	defer db.Close()

	m, err := NewSQL(db, DialectPostgres, 64)
	require.NoError(t, err)
	require.NoError(t, m.Migrate(context.Background()))
	exerciseMedium(t, m, 64)
}
