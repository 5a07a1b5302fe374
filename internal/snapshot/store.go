package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/testscribe/testscribe/internal/domain"
	"github.com/testscribe/testscribe/internal/storage"
)

// Artifact file names inside a snapshot directory.
const (
	FileSnapshot   = "snapshot.json"
	FileDomTree    = "dom_tree.json"
	FileControls   = "controls.json"
	FileA11y       = "a11y.json"
	FileHTML       = "page.html"
	FileScreenshot = "page.png"
)

// Store persists snapshot bundles under a root directory. Each bundle is
// staged into a temp directory and renamed into place, so readers never see
// a half-written snapshot.
type Store struct {
	root   string
	logger *zap.Logger
}

// NewStore creates a snapshot Store rooted at root.
func NewStore(root string, logger *zap.Logger) *Store {
	if logger == nil {
		logger, _ = zap.NewDevelopment()
	}
	return &Store{root: root, logger: logger}
}

// Save writes the snapshot bundle and returns the final directory path.
func (st *Store) Save(res *CaptureResult) (string, error) {
	snap := res.Snapshot
	final := filepath.Join(st.root, snap.SnapshotID)
	staging := filepath.Join(st.root, ".tmp-"+snap.SnapshotID)

	if err := st.writeArtifacts(staging, res); err != nil {
		os.RemoveAll(staging)
		return "", err
	}
	if err := storage.RenameAtomic(staging, final); err != nil {
		os.RemoveAll(staging)
		return "", fmt.Errorf("publishing snapshot: %w", err)
	}

	st.logger.Info("saved snapshot", zap.String("dir", final))
	return final, nil
}

func (st *Store) writeArtifacts(dir string, res *CaptureResult) error {
	snap := res.Snapshot

	if err := storage.WriteJSON(filepath.Join(dir, FileSnapshot), snap); err != nil {
		return fmt.Errorf("writing snapshot.json: %w", err)
	}
	if snap.DomTree != nil {
		if err := storage.WriteJSON(filepath.Join(dir, FileDomTree), snap.DomTree); err != nil {
			return fmt.Errorf("writing dom_tree.json: %w", err)
		}
	}
	if err := storage.WriteJSON(filepath.Join(dir, FileControls), snap.Controls); err != nil {
		return fmt.Errorf("writing controls.json: %w", err)
	}
	if snap.A11yTree != nil {
		if err := storage.WriteJSON(filepath.Join(dir, FileA11y), snap.A11yTree); err != nil {
			return fmt.Errorf("writing a11y.json: %w", err)
		}
	}
	if err := storage.WriteFileAtomic(filepath.Join(dir, FileHTML), []byte(snap.HTML), 0o644); err != nil {
		return fmt.Errorf("writing page.html: %w", err)
	}
	if len(res.Screenshot) > 0 {
		if err := storage.WriteFileAtomic(filepath.Join(dir, FileScreenshot), res.Screenshot, 0o644); err != nil {
			return fmt.Errorf("writing page.png: %w", err)
		}
	}
	return nil
}

// Load reads a snapshot bundle back from dir.
func (st *Store) Load(dir string) (*domain.Snapshot, error) {
	var snap domain.Snapshot
	if err := storage.ReadJSON(filepath.Join(dir, FileSnapshot), &snap); err != nil {
		return nil, fmt.Errorf("reading snapshot.json: %w", err)
	}
	if html, err := os.ReadFile(filepath.Join(dir, FileHTML)); err == nil {
		snap.HTML = string(html)
	}
	return &snap, nil
}

// Cleanup removes snapshot directories older than maxAge and any leftover
// staging directories. It returns the number of directories removed.
func (st *Store) Cleanup(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(st.root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("listing snapshots: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(st.root, entry.Name())
		if strings.HasPrefix(entry.Name(), ".tmp-") {
			if os.RemoveAll(path) == nil {
				removed++
			}
			continue
		}
		if dirTime(entry).Before(cutoff) {
			if err := os.RemoveAll(path); err != nil {
				st.logger.Warn("removing stale snapshot", zap.String("dir", path), zap.Error(err))
				continue
			}
			removed++
		}
	}
	if removed > 0 {
		st.logger.Info("cleaned up snapshots", zap.Int("removed", removed))
	}
	return removed, nil
}

// dirTime parses the timestamp prefix of a snapshot directory name, falling
// back to the directory mtime.
func dirTime(entry os.DirEntry) time.Time {
	name := entry.Name()
	if i := strings.Index(name, "_"); i > 0 {
		if t, err := time.Parse("20060102T150405Z", name[:i]); err == nil {
			return t
		}
	}
	if info, err := entry.Info(); err == nil {
		return info.ModTime()
	}
	return time.Now()
}
