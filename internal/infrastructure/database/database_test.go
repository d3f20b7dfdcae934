package database

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/you/authsvc/internal/infrastructure/repositories"
)

func TestOpen_SQLiteAndMigrate(t *testing.T) {
	db, err := Open("sqlite", "file::memory:", "")
	require.NoError(t, err)

	require.NoError(t, AutoMigrate(db))
	for _, model := range repositories.Models() {
		assert.True(t, db.Migrator().HasTable(model))
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open("mysql", "dsn", "")
	assert.Error(t, err)
}

func TestOpenRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := OpenRedis(context.Background(), RedisOptions{Addr: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
}

func TestOpenRedis_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := OpenRedis(context.Background(), RedisOptions{Addr: addr})
	assert.Error(t, err)
}
