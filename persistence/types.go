package persistence

import (
	"fmt"

	"github.com/chathaven/haven-client/config"
	"github.com/chathaven/haven-client/types"
)

// ErrNotFound is returned when no session record has been stored.
var ErrNotFound = fmt.Errorf("not found")

// Persister stores the durable session snapshot used for the silent rejoin
// on restart plus the list of recently joined rooms.
type Persister interface {
	StoreSession(types.SessionRecord) error
	GetSession(*types.SessionRecord) error
	DeleteSession() error
	TouchRecentRoom(code string) error
	DeleteRecentRoom(code string) error
	GetRecentRooms() ([]*types.RecentRoom, error)
	Close() error
}

// NewPersister selects the backend from the configuration. A nil Persister
// with a nil error means session persistence is disabled; all callers
// tolerate that.
func NewPersister(cfg *config.Config) (Persister, error) {
	switch cfg.PersistenceConfig.Type {
	case "":
		return nil, nil
	case "buntdb":
		return NewBuntPersister(cfg)
	case "sqlite", "postgres":
		return NewGormPersister(cfg)
	}
	return nil, fmt.Errorf("unknown persistence type %q", cfg.PersistenceConfig.Type)
}
