package medium

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"digisafe/internal/safe/ports"
	"digisafe/pkg/platform/sentinel"
)

// exerciseMedium checks the behavior every backend shares.
func exerciseMedium(t *testing.T, m ports.Medium, size int) {
	t.Helper()
	ctx := context.Background()

	t.Run("unwritten bytes read as zero", func(t *testing.T) {
		v, err := m.Read(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, byte(0), v)
	})

	t.Run("written bytes read back", func(t *testing.T) {
		require.NoError(t, m.Write(ctx, 0, 0x6A))
		require.NoError(t, m.Write(ctx, uint16(size-1), 0xCC))

		v, err := m.Read(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, byte(0x6A), v)

		v, err = m.Read(ctx, uint16(size-1))
		require.NoError(t, err)
		assert.Equal(t, byte(0xCC), v)
	})

	t.Run("overwrite replaces value", func(t *testing.T) {
		require.NoError(t, m.Write(ctx, 5, 1))
		require.NoError(t, m.Write(ctx, 5, 2))
		v, err := m.Read(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, byte(2), v)
	})

	t.Run("address past the end is rejected", func(t *testing.T) {
		_, err := m.Read(ctx, uint16(size))
		assert.ErrorIs(t, err, sentinel.ErrOutOfBounds)
		err = m.Write(ctx, uint16(size), 1)
		assert.ErrorIs(t, err, sentinel.ErrOutOfBounds)
	})

	assert.Equal(t, size, m.Size())
}

func TestMemory(t *testing.T) {
	m, err := NewMemory(64)
	require.NoError(t, err)
	exerciseMedium(t, m, 64)

	snap := m.Snapshot()
	assert.Equal(t, byte(0x6A), snap[0])
	snap[0] = 0
	v, _ := m.Read(context.Background(), 0)
	assert.Equal(t, byte(0x6A), v, "snapshot must be a copy")
}

func TestMemorySizeValidation(t *testing.T) {
	_, err := NewMemory(0)
	assert.Error(t, err)
	_, err = NewMemory(MaxSize + 1)
	assert.Error(t, err)
	_, err = NewMemoryFrom(nil)
	assert.Error(t, err)
}

func TestMemoryFromCopiesImage(t *testing.T) {
	image := []byte{1, 2, 3, 4}
	m, err := NewMemoryFrom(image)
	require.NoError(t, err)
	image[0] = 9
	v, err := m.Read(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, byte(1), v)
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eeprom.bin")
	m, err := OpenFile(path, 64)
	require.NoError(t, err)
	exerciseMedium(t, m, 64)
	require.NoError(t, m.Close())

	t.Run("contents survive reopen", func(t *testing.T) {
		reopened, err := OpenFile(path, 64)
		require.NoError(t, err)
		defer reopened.Close()

		v, err := reopened.Read(context.Background(), 0)
		require.NoError(t, err)
		assert.Equal(t, byte(0x6A), v)
	})

	t.Run("larger image than size is rejected", func(t *testing.T) {
		_, err := OpenFile(path, 32)
		assert.Error(t, err)
	})
}

func TestSQLite(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "medium.db"))
	require.NoError(t, err)
	defer db.Close()

	m, err := NewSQL(db, DialectSQLite, 64)
	require.NoError(t, err)
	require.NoError(t, m.Migrate(context.Background()))
	exerciseMedium(t, m, 64)
}

func TestNewSQLValidation(t *testing.T) {
	_, err := NewSQL(nil, DialectSQLite, 64)
	assert.Error(t, err)

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "medium.db"))
	require.NoError(t, err)
	defer db.Close()

	_, err = NewSQL(db, Dialect("oracle"), 64)
	assert.Error(t, err)
}

func TestNewRedisValidation(t *testing.T) {
	_, err := NewRedis(nil, "k", 64)
	assert.Error(t, err)
}
