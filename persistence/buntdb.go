package persistence

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/chathaven/haven-client/config"
	"github.com/chathaven/haven-client/types"
	"github.com/gofrs/flock"
	"github.com/tidwall/buntdb"
)

const (
	sessionKey      = "session:current"
	recentKeyPrefix = "recent:"
)

type BuntDBPersist struct {
	db *buntdb.DB
	fl *flock.Flock
}

// NewBuntPersister opens the BuntDB-backed session store. The database file
// is guarded by a file lock so that only one client process owns the session
// record at a time.
func NewBuntPersister(cfg *config.Config) (Persister, error) {
	name := cfg.PersistenceConfig.BuntDB.Name
	if name == "" {
		name = cfg.PersistenceConfig.DSN
	}
	if name == "" {
		return nil, nil // no or wrong configuration, ignore the persister
	}
	var fl *flock.Flock
	flockPath := cfg.PersistenceConfig.FlockPath
	if flockPath == "" && name != ":memory:" {
		flockPath = name + ".lock"
	}
	if flockPath != "" {
		fl = flock.New(flockPath)
		locked, err := fl.TryLock()
		if err != nil {
			return nil, err
		}
		if !locked {
			return nil, fmt.Errorf("session store %s is in use by another client", name)
		}
	}
	db, err := buntdb.Open(name)
	if err != nil {
		if fl != nil {
			_ = fl.Unlock()
		}
		return nil, err
	}
	return &BuntDBPersist{db: db, fl: fl}, nil
}

func (p *BuntDBPersist) StoreSession(rec types.SessionRecord) error {
	rec.UpdatedAt = time.Now()
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return p.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(sessionKey, string(raw), nil)
		return err
	})
}

func (p *BuntDBPersist) GetSession(rec *types.SessionRecord) error {
	return p.db.View(func(tx *buntdb.Tx) error {
		raw, err := tx.Get(sessionKey)
		if err == buntdb.ErrNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(raw), rec)
	})
}

func (p *BuntDBPersist) DeleteSession() error {
	return p.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(sessionKey)
		if err == buntdb.ErrNotFound {
			return nil
		}
		return err
	})
}

func (p *BuntDBPersist) TouchRecentRoom(code string) error {
	raw, err := json.Marshal(types.RecentRoom{Code: code, LastSeen: time.Now()})
	if err != nil {
		return err
	}
	return p.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(recentKeyPrefix+code, string(raw), nil)
		return err
	})
}

func (p *BuntDBPersist) DeleteRecentRoom(code string) error {
	return p.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(recentKeyPrefix + code)
		if err == buntdb.ErrNotFound {
			return nil
		}
		return err
	})
}

func (p *BuntDBPersist) GetRecentRooms() ([]*types.RecentRoom, error) {
	rooms := make([]*types.RecentRoom, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(recentKeyPrefix+"*", func(key, value string) bool {
			room := &types.RecentRoom{}
			if err := json.Unmarshal([]byte(value), room); err != nil {
				return true // skip unreadable entries
			}
			if room.Code == "" {
				room.Code = strings.TrimPrefix(key, recentKeyPrefix)
			}
			rooms = append(rooms, room)
			return true
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].LastSeen.After(rooms[j].LastSeen) })
	return rooms, nil
}

func (p *BuntDBPersist) Close() error {
	err := p.db.Close()
	if p.fl != nil {
		_ = p.fl.Unlock()
	}
	return err
}
