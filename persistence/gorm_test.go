package persistence

import (
	"path/filepath"
	"testing"

	"github.com/chathaven/haven-client/config"
	"github.com/chathaven/haven-client/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormPersisterRoundTrip(t *testing.T) {
	cfg := &config.Config{
		PersistenceConfig: config.PersistenceConfig{
			Type: "sqlite",
			DSN:  filepath.Join(t.TempDir(), "session.db"),
		},
	}
	p, err := NewGormPersister(cfg)
	require.NoError(t, err)
	require.NotNil(t, p)
	defer p.Close()

	rec := types.SessionRecord{}
	assert.Equal(t, ErrNotFound, p.GetSession(&rec))

	require.NoError(t, p.StoreSession(types.SessionRecord{
		Room:     "abc123",
		Username: "alice",
		Tags:     types.JSONStringMap{"session": "s1"},
	}))
	require.NoError(t, p.GetSession(&rec))
	assert.Equal(t, "abc123", rec.Room)
	assert.Equal(t, "s1", rec.Tags["session"])

	require.NoError(t, p.TouchRecentRoom("abc123"))
	rooms, err := p.GetRecentRooms()
	require.NoError(t, err)
	require.Len(t, rooms, 1)

	require.NoError(t, p.DeleteSession())
	assert.Equal(t, ErrNotFound, p.GetSession(&rec))
}

func TestGormPersisterRequiresDSN(t *testing.T) {
	p, err := NewGormPersister(&config.Config{
		PersistenceConfig: config.PersistenceConfig{Type: "sqlite"},
	})
	require.NoError(t, err)
	assert.Nil(t, p)
}
