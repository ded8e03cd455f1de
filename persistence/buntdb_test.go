package persistence

import (
	"testing"
	"time"

	"github.com/chathaven/haven-client/config"
	"github.com/chathaven/haven-client/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memPersister(t *testing.T) Persister {
	t.Helper()
	cfg := &config.Config{
		PersistenceConfig: config.PersistenceConfig{
			Type:   "buntdb",
			BuntDB: config.BuntDBConfig{Name: ":memory:"},
		},
	}
	p, err := NewPersister(cfg)
	require.NoError(t, err)
	require.NotNil(t, p)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestSessionRecordRoundTrip(t *testing.T) {
	p := memPersister(t)

	rec := types.SessionRecord{}
	assert.Equal(t, ErrNotFound, p.GetSession(&rec))

	require.NoError(t, p.StoreSession(types.SessionRecord{
		Room:     "abc123",
		Username: "alice",
		Tags:     types.JSONStringMap{"session": "s1"},
	}))
	require.NoError(t, p.GetSession(&rec))
	assert.Equal(t, "abc123", rec.Room)
	assert.Equal(t, "alice", rec.Username)
	assert.Equal(t, "s1", rec.Tags["session"])
	assert.False(t, rec.UpdatedAt.IsZero())

	// storing again overwrites, there is only one record
	require.NoError(t, p.StoreSession(types.SessionRecord{Room: "xyz789", Username: "alice"}))
	require.NoError(t, p.GetSession(&rec))
	assert.Equal(t, "xyz789", rec.Room)

	require.NoError(t, p.DeleteSession())
	assert.Equal(t, ErrNotFound, p.GetSession(&rec))
	// deleting a missing record is not an error
	require.NoError(t, p.DeleteSession())
}

func TestRecentRoomsMostRecentFirst(t *testing.T) {
	p := memPersister(t)

	require.NoError(t, p.TouchRecentRoom("first"))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, p.TouchRecentRoom("second"))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, p.TouchRecentRoom("first"))

	rooms, err := p.GetRecentRooms()
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, "first", rooms[0].Code)
	assert.Equal(t, "second", rooms[1].Code)

	require.NoError(t, p.DeleteRecentRoom("second"))
	rooms, err = p.GetRecentRooms()
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, "first", rooms[0].Code)
}

func TestNewPersisterDispatch(t *testing.T) {
	p, err := NewPersister(&config.Config{})
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = NewPersister(&config.Config{PersistenceConfig: config.PersistenceConfig{Type: "etcd"}})
	assert.Error(t, err)
}
