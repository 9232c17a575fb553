package fileio

import (
	"iter"
	"time"

	apperrors "github.com/penwyp/claudequota/errors"
	"github.com/penwyp/claudequota/logging"
	"github.com/penwyp/claudequota/models"
)

// EventCache memoizes parsed events per file version.
type EventCache interface {
	Get(path string, size int64, modTime time.Time) ([]models.Event, bool)
	Put(path string, size int64, modTime time.Time, events []models.Event)
}

// ScanOptions bounds a scan.
type ScanOptions struct {
	MaxFiles     int
	MaxLineBytes int
	Cache        EventCache
}

// Scanner yields events from a tree of conversation logs.
type Scanner struct {
	opts ScanOptions
}

func NewScanner(opts ScanOptions) *Scanner {
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = models.DefaultMaxFiles
	}
	if opts.MaxLineBytes <= 0 {
		opts.MaxLineBytes = models.DefaultMaxLineBytes
	}
	return &Scanner{opts: opts}
}

// Events returns a lazy sequence over every event in files under root whose
// modification time is not before since. Each range re-walks the tree.
// Unreadable files are logged and skipped.
func (s *Scanner) Events(root string, since time.Time) iter.Seq[models.Event] {
	return func(yield func(models.Event) bool) {
		files, err := DiscoverFiles(root, since, s.opts.MaxFiles)
		if err != nil {
			logging.LogWarnf("scan %s: %v", root, err)
			return
		}
		for _, f := range files {
			events, err := s.load(f)
			if err != nil {
				logging.LogWarnf("skipping %s: %v", f.Path, err)
				continue
			}
			for _, ev := range events {
				if !yield(ev) {
					return
				}
			}
		}
	}
}

func (s *Scanner) load(f LogFile) ([]models.Event, error) {
	if s.opts.Cache != nil {
		if events, ok := s.opts.Cache.Get(f.Path, f.Size, f.ModTime); ok {
			return events, nil
		}
	}

	var events []models.Event
	err := apperrors.SafeCall("read "+f.Path, func() error {
		var err error
		events, err = ReadFile(f.Path, s.opts.MaxLineBytes)
		return err
	})
	if err != nil {
		if len(events) == 0 {
			return nil, err
		}
		logging.LogWarnf("partial read of %s: %v", f.Path, err)
		return events, nil
	}

	if s.opts.Cache != nil {
		s.opts.Cache.Put(f.Path, f.Size, f.ModTime, events)
	}
	return events, nil
}
