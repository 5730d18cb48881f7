package state

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/rolecounter/internal/counter"
	"github.com/odyssey-erp/rolecounter/internal/rbac"
)

func sampleSnapshot(value int64) *Snapshot {
	return &Snapshot{
		Counter: counter.State{Value: value},
		ACL: rbac.State{
			SuperAdmins: []rbac.AccountID{"counter.near"},
			Members: map[rbac.Role][]rbac.AccountID{
				rbac.RoleDecrementer: {"alice.near", "bob.near"},
			},
		},
	}
}

// exerciseStore checks the Store contract shared by every backend.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	snap, err := store.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, snap)

	require.NoError(t, store.Update(ctx, func(current *Snapshot) (*Snapshot, error) {
		assert.Nil(t, current)
		return sampleSnapshot(0), nil
	}))

	snap, err = store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, sampleSnapshot(0), snap)

	// An aborted update leaves the committed state untouched.
	errAbort := errors.New("abort")
	err = store.Update(ctx, func(current *Snapshot) (*Snapshot, error) {
		current.Counter.Value = 99
		return nil, errAbort
	})
	require.ErrorIs(t, err, errAbort)

	// A nil result commits nothing.
	require.NoError(t, store.Update(ctx, func(current *Snapshot) (*Snapshot, error) {
		current.Counter.Value = 42
		return nil, nil
	}))

	snap, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.Counter.Value)

	require.NoError(t, store.Update(ctx, func(current *Snapshot) (*Snapshot, error) {
		require.NotNil(t, current)
		next := current.Clone()
		next.Counter.Value++
		next.ACL.Members[rbac.RoleResetter] = []rbac.AccountID{"carol.near"}
		return &next, nil
	}))

	snap, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Counter.Value)
	assert.Equal(t, []rbac.AccountID{"carol.near"}, snap.ACL.Members[rbac.RoleResetter])
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreIsolatesCallers(t *testing.T) {
	store := NewMemoryStore()
	next := sampleSnapshot(3)
	require.NoError(t, store.Update(context.Background(), func(*Snapshot) (*Snapshot, error) {
		return next, nil
	}))
	next.ACL.Members[rbac.RoleDecrementer][0] = "mutated.near"

	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, rbac.AccountID("alice.near"), snap.ACL.Members[rbac.RoleDecrementer][0])
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	exerciseStore(t, NewRedisStore(client, "test"))
	assert.True(t, mr.Exists("test:counter"))
	assert.True(t, mr.Exists("test:acl"))
}

func TestRedisStoreConflict(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisStore(client, "test")
	ctx := context.Background()

	err := store.Update(ctx, func(*Snapshot) (*Snapshot, error) {
		// Another writer lands between the watched read and the commit.
		require.NoError(t, mr.Set("test:counter", `{"value":7}`))
		require.NoError(t, mr.Set("test:acl", `{"super_admins":[],"members":{}}`))
		return sampleSnapshot(1), nil
	})
	require.ErrorIs(t, err, ErrConflict)

	snap, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), snap.Counter.Value)
}

func TestRedisStorePartialSnapshot(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, mr.Set("test:counter", `{"value":1}`))

	_, err := NewRedisStore(client, "test").Load(context.Background())
	require.Error(t, err)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store := NewPostgresStore(pool, "test-"+t.Name())
	require.NoError(t, store.EnsureSchema(ctx))
	_, err = pool.Exec(ctx, `DELETE FROM contract_state WHERE deployment = $1`, "test-"+t.Name())
	require.NoError(t, err)

	exerciseStore(t, store)
}
