package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationFiles(t *testing.T) {
	files, err := migrationFiles()
	require.NoError(t, err)

	require.NotEmpty(t, files)
	assert.Equal(t, "001_events.sql", files[0])
	assert.IsIncreasing(t, files)
}

func TestNewPool_InvalidDSN(t *testing.T) {
	_, err := NewPool(t.Context(), "postgres://%zz")
	assert.ErrorContains(t, err, "parse postgres dsn")
}
