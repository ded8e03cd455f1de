package persistence

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/chathaven/haven-client/config"
	"github.com/chathaven/haven-client/types"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var _ driver.Valuer = &datatypes.JSON{}

const currentSessionId = "current"

type GormPersist struct {
	db *gorm.DB
}

// NewGormPersister opens a SQL-backed session store, sqlite or postgres
// depending on the configured type and DSN.
func NewGormPersister(cfg *config.Config) (Persister, error) {
	db, err := setupGormDB(cfg)
	if err != nil {
		return nil, err
	}
	if db == nil {
		return nil, nil // no or wrong configuration, ignore the persister
	}
	p := GormPersist{db: db}
	return &p, nil
}

func setupGormDB(cfg *config.Config) (*gorm.DB, error) {
	if cfg.PersistenceConfig.DSN == "" {
		return nil, nil
	}
	var dial gorm.Dialector
	switch cfg.PersistenceConfig.Type {
	case "postgres":
		dial = postgres.Open(cfg.PersistenceConfig.DSN)

	case "sqlite":
		dial = sqlite.Open(cfg.PersistenceConfig.DSN)

	default:
		return nil, fmt.Errorf("invalid gorm configuration")
	}
	db, err := gorm.Open(dial, &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.Migrator().AutoMigrate(&types.SessionRecord{}, &types.RecentRoom{}); err != nil {
		return nil, err
	}
	return db, nil
}

func (p *GormPersist) StoreSession(rec types.SessionRecord) error {
	rec.Id = currentSessionId
	rec.UpdatedAt = time.Now()
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error
}

func (p *GormPersist) GetSession(rec *types.SessionRecord) error {
	rec.Id = currentSessionId
	err := p.db.First(rec).Error
	if err == gorm.ErrRecordNotFound {
		return ErrNotFound
	}
	return err
}

func (p *GormPersist) DeleteSession() error {
	return p.db.Delete(&types.SessionRecord{Id: currentSessionId}).Error
}

func (p *GormPersist) TouchRecentRoom(code string) error {
	room := types.RecentRoom{Code: code, LastSeen: time.Now()}
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&room).Error
}

func (p *GormPersist) DeleteRecentRoom(code string) error {
	return p.db.Delete(&types.RecentRoom{Code: code}).Error
}

func (p *GormPersist) GetRecentRooms() ([]*types.RecentRoom, error) {
	rooms := make([]*types.RecentRoom, 0)
	err := p.db.Order("last_seen desc").Find(&rooms).Error
	return rooms, err
}

func (p *GormPersist) Close() error {
	db, err := p.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
