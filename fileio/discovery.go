package fileio

import (
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	apperrors "github.com/penwyp/claudequota/errors"
	"github.com/penwyp/claudequota/logging"
	"github.com/penwyp/claudequota/models"
)

// PathDiscovery locates the conversation log root.
type PathDiscovery struct {
	searchPaths []string
}

// LogFile is a discovered conversation log.
type LogFile struct {
	Path    string
	Size    int64
	ModTime time.Time
}

func NewPathDiscovery() *PathDiscovery {
	return &PathDiscovery{searchPaths: getDefaultSearchPaths()}
}

// AddSearchPath prepends path so explicit locations win over defaults.
func (p *PathDiscovery) AddSearchPath(path string) {
	p.searchPaths = append([]string{ExpandHome(path)}, p.searchPaths...)
}

// SearchPaths returns the candidate directories in lookup order.
func (p *PathDiscovery) SearchPaths() []string {
	out := make([]string, len(p.searchPaths))
	copy(out, p.searchPaths)
	return out
}

// Resolve returns the first candidate that exists and is a directory.
func (p *PathDiscovery) Resolve() (string, error) {
	for _, path := range p.searchPaths {
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			return path, nil
		}
	}
	return "", apperrors.ErrLogDirNotFound
}

// ResolveLogDir returns override when it is set, otherwise the first default
// location that exists. An override that does not exist is an error.
func ResolveLogDir(override string) (string, error) {
	if override != "" {
		path := ExpandHome(override)
		info, err := os.Stat(path)
		if err != nil || !info.IsDir() {
			return "", apperrors.ErrLogDirNotFound
		}
		return path, nil
	}
	return NewPathDiscovery().Resolve()
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

func getDefaultSearchPaths() []string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	paths := []string{
		filepath.Join(homeDir, models.ClaudeDirName, "projects"),
		filepath.Join(homeDir, ".config", "claude", "projects"),
	}
	if runtime.GOOS == "windows" {
		appData := os.Getenv("APPDATA")
		if appData == "" {
			appData = filepath.Join(homeDir, "AppData", "Roaming")
		}
		paths = append(paths, filepath.Join(appData, "Claude", "projects"))
	}
	return paths
}

// DiscoverFiles walks root for log files modified at or after since. A zero
// since accepts every file. At most maxFiles of the most recently modified
// files are returned, ordered by path.
func DiscoverFiles(root string, since time.Time, maxFiles int) ([]LogFile, error) {
	var files []LogFile

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			logging.LogWarnf("skipping %s: %v", path, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), models.LogFileExtension) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			logging.LogWarnf("stat %s: %v", path, err)
			return nil
		}
		if !since.IsZero() && info.ModTime().Before(since) {
			return nil
		}
		files = append(files, LogFile{Path: path, Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.TypeIO, "discover", root, err)
	}

	if maxFiles > 0 && len(files) > maxFiles {
		sort.Slice(files, func(i, j int) bool { return files[i].ModTime.After(files[j].ModTime) })
		logging.LogWarnf("log tree has %d candidate files, scanning the %d most recent", len(files), maxFiles)
		files = files[:maxFiles]
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}
