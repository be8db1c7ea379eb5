// Package retention prunes stored apk artifacts and build history on a cron schedule.
package retention

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/robfig/cron/v3"

	"github.com/umputun/apkbuild/app/web/persistence"
)

// DefaultSchedule is used when Config.Schedule is empty
const DefaultSchedule = "@hourly"

// Store is the part of build history used for pruning
type Store interface {
	ClearArtifact(id string) error
	Trim(maxRecords int) ([]persistence.BuildRecord, error)
}

// Config defines retention limits. Zero value of a limit disables it.
type Config struct {
	Schedule     string
	MaxAge       time.Duration
	MaxRecords   int
	ArtifactsDir string
}

// Pruner removes artifacts older than MaxAge and keeps at most MaxRecords builds in history
type Pruner struct {
	Config
	Store Store
	now   func() time.Time
	sched cron.Schedule
}

// NewPruner makes pruner with parsed schedule, an invalid schedule is reported here and not on Run
func NewPruner(cfg Config, store Store) (*Pruner, error) {
	p := &Pruner{Config: cfg, Store: store}
	sched, err := p.schedule()
	if err != nil {
		return nil, err
	}
	p.sched = sched
	return p, nil
}

// Stats reports what a single cleanup removed
type Stats struct {
	Artifacts int
	Records   int
}

// Run schedules cleanup and blocks until ctx is done
func (p *Pruner) Run(ctx context.Context) error {
	sched := p.sched
	if sched == nil {
		var err error
		if sched, err = p.schedule(); err != nil {
			return err
		}
	}

	c := cron.New()
	c.Schedule(sched, cron.FuncJob(func() {
		if _, err := p.Cleanup(); err != nil {
			log.Printf("[WARN] retention cleanup failed: %v", err)
		}
	}))
	c.Start()
	log.Printf("[INFO] retention started, schedule %q, max age %v, max records %d", p.spec(), p.MaxAge, p.MaxRecords)

	<-ctx.Done()
	<-c.Stop().Done() // wait for running cleanup
	log.Printf("[DEBUG] retention stopped")
	return nil
}

func (p *Pruner) spec() string {
	if p.Schedule == "" {
		return DefaultSchedule
	}
	return p.Schedule
}

func (p *Pruner) schedule() (cron.Schedule, error) {
	sched, err := cron.ParseStandard(p.spec())
	if err != nil {
		return nil, fmt.Errorf("can't parse retention schedule %q: %w", p.spec(), err)
	}
	return sched, nil
}

// Cleanup makes a single pruning pass
func (p *Pruner) Cleanup() (Stats, error) {
	var stats Stats
	var errs []error

	if p.MaxAge > 0 && p.ArtifactsDir != "" {
		n, err := p.removeExpired()
		stats.Artifacts += n
		if err != nil {
			errs = append(errs, err)
		}
	}

	if p.MaxRecords > 0 && p.Store != nil {
		removed, err := p.Store.Trim(p.MaxRecords)
		if err != nil {
			errs = append(errs, err)
		}
		stats.Records = len(removed)
		for _, rec := range removed {
			if rec.Artifact == "" || p.ArtifactsDir == "" {
				continue
			}
			err := os.Remove(filepath.Join(p.ArtifactsDir, filepath.Base(rec.Artifact)))
			switch {
			case err == nil:
				stats.Artifacts++
			case !errors.Is(err, fs.ErrNotExist):
				errs = append(errs, fmt.Errorf("can't remove artifact of trimmed build %s: %w", rec.ID, err))
			}
		}
	}

	if stats.Artifacts > 0 || stats.Records > 0 {
		log.Printf("[INFO] retention removed %d artifacts and %d build records", stats.Artifacts, stats.Records)
	}
	return stats, errors.Join(errs...)
}

// removeExpired deletes apk files not modified within MaxAge and clears their history references.
// Artifact file is named by build id.
func (p *Pruner) removeExpired() (int, error) {
	entries, err := os.ReadDir(p.ArtifactsDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("can't read artifacts dir %s: %w", p.ArtifactsDir, err)
	}

	now := time.Now
	if p.now != nil {
		now = p.now
	}
	threshold := now().Add(-p.MaxAge)

	var count int
	var errs []error
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.HasSuffix(e.Name(), ".apk") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue // removed concurrently
		}
		if info.ModTime().After(threshold) {
			continue
		}
		if err := os.Remove(filepath.Join(p.ArtifactsDir, e.Name())); err != nil {
			errs = append(errs, fmt.Errorf("can't remove expired artifact %s: %w", e.Name(), err))
			continue
		}
		count++
		log.Printf("[DEBUG] expired artifact %s removed", e.Name())
		if p.Store == nil {
			continue
		}
		if err := p.Store.ClearArtifact(strings.TrimSuffix(e.Name(), ".apk")); err != nil {
			errs = append(errs, err)
		}
	}
	return count, errors.Join(errs...)
}
