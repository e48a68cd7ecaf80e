// Package cache is the local persistent cache: a scoped key/value store
// with one slot per entity collection, serialized as text in the internal
// shape. Backed by an embedded sqlite database so state survives restarts
// without any server round trip.
package cache

import (
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/loomworks/loom/go/pkg/workspace/apperrors"
)

// Slot identifies one cached entity collection.
type Slot string

const (
	SlotConfig         Slot = "config"
	SlotSessions       Slot = "sessions"
	SlotKnowledgeBases Slot = "knowledge_bases"
	SlotAgents         Slot = "agents"
	SlotAPIKeys        Slot = "api_keys"
	SlotToolServers    Slot = "tool_servers"
)

type entry struct {
	Key       string `gorm:"primaryKey"`
	Value     string
	UpdatedAt time.Time
}

func (entry) TableName() string { return "cache_entries" }

// Store wraps the sqlite database.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the cache database at path. Use
// ":memory:" for an ephemeral store in tests.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeCacheIO, "failed to open cache database", err)
	}
	if err := db.AutoMigrate(&entry{}); err != nil {
		return nil, apperrors.New(apperrors.ErrCodeCacheIO, "failed to migrate cache schema", err)
	}
	return &Store{db: db}, nil
}

// Put writes a slot, replacing any previous value.
func (s *Store) Put(slot Slot, value string) error {
	e := entry{Key: string(slot), Value: value, UpdatedAt: time.Now()}
	if err := s.db.Save(&e).Error; err != nil {
		return apperrors.New(apperrors.ErrCodeCacheIO, "failed to write cache slot", err)
	}
	return nil
}

// Get reads a slot. The second return reports whether the slot exists.
func (s *Store) Get(slot Slot) (string, bool, error) {
	var e entry
	err := s.db.First(&e, "key = ?", string(slot)).Error
	if err == gorm.ErrRecordNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperrors.New(apperrors.ErrCodeCacheIO, "failed to read cache slot", err)
	}
	return e.Value, true, nil
}

// Delete removes a slot if present.
func (s *Store) Delete(slot Slot) error {
	if err := s.db.Delete(&entry{}, "key = ?", string(slot)).Error; err != nil {
		return apperrors.New(apperrors.ErrCodeCacheIO, "failed to delete cache slot", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
