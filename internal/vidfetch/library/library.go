package library

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/vidfetch/vidfetch/internal/common/logging"
	"github.com/vidfetch/vidfetch/internal/common/task"
	"github.com/vidfetch/vidfetch/internal/vidfetch/configuration"
	"github.com/vidfetch/vidfetch/internal/vidfetch/fetcher"
)

const segmentsDirName = "segments"

// Library answers questions about finished artifacts on disk and keeps
// their number bounded. The media directory is the single source of truth;
// there is no separate index that could drift.
type Library struct {
	mediaDir      string
	retainCount   int
	sweepInterval time.Duration
	log           *log.Entry
}

func New(config configuration.LibraryConfig, mediaDir string) *Library {
	if config.RetainCount <= 0 {
		config.RetainCount = 10
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = 5 * time.Minute
	}
	return &Library{
		mediaDir:      mediaDir,
		retainCount:   config.RetainCount,
		sweepInterval: config.SweepInterval,
		log:           log.WithField("service", "library"),
	}
}

// List returns artifact file names, newest first.
func (l *Library) List() ([]string, error) {
	artifacts, err := readByAge(l.mediaDir, func(entry os.DirEntry) bool {
		return !entry.IsDir() && fetcher.IsMediaFile(entry.Name())
	})
	if err != nil {
		return nil, errors.Wrap(err, "listing artifacts")
	}
	names := make([]string, 0, len(artifacts))
	for i := len(artifacts) - 1; i >= 0; i-- {
		names = append(names, artifacts[i].name)
	}
	return names, nil
}

// Prune removes the oldest artifacts and segment directories beyond the
// retain count. It keeps going past individual failures and reports them
// all at the end.
func (l *Library) Prune() (int, error) {
	var result *multierror.Error
	removed := 0

	artifacts, err := readByAge(l.mediaDir, func(entry os.DirEntry) bool {
		return !entry.IsDir() && fetcher.IsMediaFile(entry.Name())
	})
	if err != nil {
		result = multierror.Append(result, err)
	} else if len(artifacts) > l.retainCount {
		for _, artifact := range artifacts[:len(artifacts)-l.retainCount] {
			if err := os.Remove(filepath.Join(l.mediaDir, artifact.name)); err != nil {
				result = multierror.Append(result, err)
				continue
			}
			l.log.WithField("artifact", artifact.name).Info("Pruned old artifact")
			removed++
		}
	}

	segmentsDir := filepath.Join(l.mediaDir, segmentsDirName)
	dirs, err := readByAge(segmentsDir, func(entry os.DirEntry) bool {
		return entry.IsDir()
	})
	if err != nil {
		if !os.IsNotExist(err) {
			result = multierror.Append(result, err)
		}
	} else if len(dirs) > l.retainCount {
		for _, dir := range dirs[:len(dirs)-l.retainCount] {
			if err := os.RemoveAll(filepath.Join(segmentsDir, dir.name)); err != nil {
				result = multierror.Append(result, err)
				continue
			}
			l.log.WithField("segmentDir", dir.name).Info("Pruned old segment directory")
			removed++
		}
	}

	return removed, result.ErrorOrNil()
}

// RegisterJanitor schedules periodic pruning on the task manager.
func (l *Library) RegisterJanitor(manager *task.BackgroundTaskManager) {
	manager.Register(func() {
		if _, err := l.Prune(); err != nil {
			logging.WithStacktrace(l.log, err).Warn("Artifact pruning failed")
		}
	}, l.sweepInterval, "library_prune")
}

type agedEntry struct {
	name    string
	modTime time.Time
}

// readByAge returns the entries of dir accepted by keep, oldest first.
func readByAge(dir string, keep func(os.DirEntry) bool) ([]agedEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	aged := make([]agedEntry, 0, len(entries))
	for _, entry := range entries {
		if !keep(entry) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		aged = append(aged, agedEntry{name: entry.Name(), modTime: info.ModTime()})
	}
	sort.Slice(aged, func(i, j int) bool {
		return aged[i].modTime.Before(aged[j].modTime)
	})
	return aged, nil
}
