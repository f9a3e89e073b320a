package pipeline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"

	"github.com/Akashdeep-Patra/gif-pipeline/internal/conversion"
)

const (
	runDirPrefix  = "run-"
	lockFileName  = ".lock"
	rawName       = "raw.gif"
	optimizedName = "optimized.gif"
)

// scratchRun is the private working directory of one run. The lock is held
// for as long as the run is alive so a sweep never removes it.
type scratchRun struct {
	dir  string
	lock *flock.Flock
}

func newScratchRun(root, id string) (*scratchRun, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, &conversion.IOError{Op: "create scratch directory", Path: root, Err: err}
	}
	dir := filepath.Join(root, runDirPrefix+id)
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, &conversion.IOError{Op: "create run directory", Path: dir, Err: err}
	}

	lock := flock.New(filepath.Join(dir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil || !locked {
		_ = os.RemoveAll(dir)
		if err == nil {
			err = fmt.Errorf("lock held elsewhere")
		}
		return nil, &conversion.IOError{Op: "lock run directory", Path: dir, Err: err}
	}
	return &scratchRun{dir: dir, lock: lock}, nil
}

func (s *scratchRun) Raw() string       { return filepath.Join(s.dir, rawName) }
func (s *scratchRun) Optimized() string { return filepath.Join(s.dir, optimizedName) }

// Remove deletes the run directory and everything in it.
func (s *scratchRun) Remove() error {
	unlockErr := s.lock.Unlock()
	if err := os.RemoveAll(s.dir); err != nil {
		return err
	}
	return unlockErr
}

// SweepScratch removes run directories under root that no live run holds,
// such as those left behind by a crashed process. It returns how many were
// removed.
func SweepScratch(root string, log logrus.FieldLogger) (int, error) {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, &conversion.IOError{Op: "read scratch directory", Path: root, Err: err}
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), runDirPrefix) {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		lock := flock.New(filepath.Join(dir, lockFileName))
		locked, err := lock.TryLock()
		if err != nil {
			log.WithError(err).Debugf("Skipping %s", dir)
			continue
		}
		if !locked {
			log.Debugf("Skipping %s: run in progress", dir)
			continue
		}
		_ = lock.Unlock()
		if err := os.RemoveAll(dir); err != nil {
			log.WithError(err).Warnf("Failed to remove stale run directory %s", dir)
			continue
		}
		removed++
		log.Debugf("Removed stale run directory %s", dir)
	}
	return removed, nil
}

// publishFile moves src to dest. The destination path is only ever written
// by a rename, so readers never see a partial file.
func publishFile(src, dest, id string) error {
	renameErr := os.Rename(src, dest)
	if renameErr == nil {
		return nil
	}

	// Rename fails across file systems; stage a copy next to the destination.
	staged := filepath.Join(filepath.Dir(dest), "."+filepath.Base(dest)+"."+id+".partial")
	if err := copyFile(src, staged); err != nil {
		_ = os.Remove(staged)
		return &conversion.IOError{Op: "publish", Path: dest, Err: fmt.Errorf("%v; copy fallback: %w", renameErr, err)}
	}
	if err := os.Rename(staged, dest); err != nil {
		_ = os.Remove(staged)
		return &conversion.IOError{Op: "publish", Path: dest, Err: err}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
