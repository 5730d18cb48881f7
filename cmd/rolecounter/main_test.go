package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/rolecounter/internal/app"
	"github.com/odyssey-erp/rolecounter/internal/state"
	_ "github.com/odyssey-erp/rolecounter/internal/testing/guard"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMainSkipsInTestMode(t *testing.T) {
	require.True(t, app.InTestMode())
	main()
}

func TestOpenStoreMemory(t *testing.T) {
	store, closeFn, err := openStore(context.Background(), &app.Config{StoreDriver: app.StoreMemory}, discardLogger())
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &state.MemoryStore{}, store)
}

func TestOpenStoreRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &app.Config{StoreDriver: app.StoreRedis, RedisAddr: mr.Addr(), StateKeyPrefix: "test"}

	store, closeFn, err := openStore(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &state.RedisStore{}, store)

	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestOpenStoreRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, _, err := openStore(context.Background(), &app.Config{StoreDriver: app.StoreRedis, RedisAddr: addr}, discardLogger())
	assert.Error(t, err)
}
