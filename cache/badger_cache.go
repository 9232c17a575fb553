package cache

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/dgraph-io/badger/v3"

	"github.com/penwyp/claudequota/logging"
	"github.com/penwyp/claudequota/models"
)

// EventCache keeps parsed log events per file in an in-memory BadgerDB.
// An entry is only returned while the file's size and mtime are unchanged.
type EventCache struct {
	db     *badger.DB
	mu     sync.RWMutex
	closed bool
}

// BadgerConfig configures the in-memory store.
type BadgerConfig struct {
	MemTableSize int64
	LogLevel     string
}

type fileEntry struct {
	Size    int64          `json:"size"`
	ModTime int64          `json:"modTime"`
	Events  []models.Event `json:"events"`
}

// NewEventCache opens an in-memory BadgerDB. Nothing is written to disk.
func NewEventCache(config BadgerConfig) (*EventCache, error) {
	if config.MemTableSize <= 0 {
		config.MemTableSize = 16 * 1024 * 1024
	}

	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithMemTableSize(config.MemTableSize).
		WithNumMemtables(2).
		WithLogger(newBadgerLogger(config.LogLevel))

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}
	return &EventCache{db: db}, nil
}

// Get returns the events cached for path when size and modTime still match.
func (c *EventCache) Get(path string, size int64, modTime time.Time) ([]models.Event, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, false
	}

	var entry fileEntry
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(path))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return sonic.Unmarshal(val, &entry)
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			logging.LogDebugf("event cache get %s: %v", path, err)
		}
		return nil, false
	}
	if entry.Size != size || entry.ModTime != modTime.UnixNano() {
		return nil, false
	}
	return entry.Events, true
}

// Put stores events for the given file version, replacing any older version.
func (c *EventCache) Put(path string, size int64, modTime time.Time, events []models.Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}

	data, err := sonic.Marshal(fileEntry{Size: size, ModTime: modTime.UnixNano(), Events: events})
	if err != nil {
		logging.LogDebugf("event cache encode %s: %v", path, err)
		return
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(path), data)
	})
	if err != nil {
		logging.LogDebugf("event cache put %s: %v", path, err)
	}
}

// Delete drops the entry for path.
func (c *EventCache) Delete(path string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	if err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(path))
	}); err != nil {
		logging.LogDebugf("event cache delete %s: %v", path, err)
	}
}

// Len returns the number of cached files.
func (c *EventCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return 0
	}

	n := 0
	_ = c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n
}

func (c *EventCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.db.Close()
}

// badgerLogger routes BadgerDB output to the module logger.
type badgerLogger struct {
	level int
}

const (
	badgerDebug = iota
	badgerInfo
	badgerWarning
	badgerError
)

func newBadgerLogger(level string) *badgerLogger {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return &badgerLogger{level: badgerDebug}
	case "INFO":
		return &badgerLogger{level: badgerInfo}
	case "ERROR":
		return &badgerLogger{level: badgerError}
	default:
		return &badgerLogger{level: badgerWarning}
	}
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	if l.level <= badgerError {
		logging.LogErrorf("badger: "+strings.TrimSpace(format), args...)
	}
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	if l.level <= badgerWarning {
		logging.LogWarnf("badger: "+strings.TrimSpace(format), args...)
	}
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	if l.level <= badgerInfo {
		logging.LogInfof("badger: "+strings.TrimSpace(format), args...)
	}
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	if l.level <= badgerDebug {
		logging.LogDebugf("badger: "+strings.TrimSpace(format), args...)
	}
}
