// Package conditions provides resource gate checked before a build starts, based on system metrics
package conditions

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

const (
	cpuSampleInterval = 500 * time.Millisecond
	customTimeout     = 30 * time.Second
)

// Config defines thresholds, zero value disables the check
type Config struct {
	MinDiskFreeMB int     // free space required on the workspace volume, in MB
	MaxMemoryUsed int     // memory used, percent
	MaxLoadAvg    float64 // 1 minute load average
	MaxCPU        int     // cpu used, percent
	Custom        string  // shell command, must exit with 0
}

// Enabled returns true if at least one condition set
func (c Config) Enabled() bool {
	return c.MinDiskFreeMB > 0 || c.MaxMemoryUsed > 0 || c.MaxLoadAvg > 0 || c.MaxCPU > 0 || c.Custom != ""
}

// Checker verifies conditions with live system metrics
type Checker struct {
	Config

	diskFree   func(ctx context.Context, path string) (uint64, error)
	memUsed    func(ctx context.Context) (float64, error)
	loadAvg    func(ctx context.Context) (float64, error)
	cpuPercent func(ctx context.Context) (float64, error)
}

// NewChecker makes checker for the config
func NewChecker(cfg Config) *Checker {
	return &Checker{
		Config: cfg,
		diskFree: func(ctx context.Context, path string) (uint64, error) {
			usage, err := disk.UsageWithContext(ctx, path)
			if err != nil {
				return 0, err
			}
			return usage.Free, nil
		},
		memUsed: func(ctx context.Context) (float64, error) {
			v, err := mem.VirtualMemoryWithContext(ctx)
			if err != nil {
				return 0, err
			}
			return v.UsedPercent, nil
		},
		loadAvg: func(ctx context.Context) (float64, error) {
			v, err := load.AvgWithContext(ctx)
			if err != nil {
				return 0, err
			}
			return v.Load1, nil
		},
		cpuPercent: func(ctx context.Context) (float64, error) {
			v, err := cpu.PercentWithContext(ctx, cpuSampleInterval, false)
			if err != nil {
				return 0, err
			}
			if len(v) == 0 {
				return 0, fmt.Errorf("no cpu data available")
			}
			return v[0], nil
		},
	}
}

// Check verifies if all conditions are met for a build in path.
// Returns true if conditions are satisfied, false with reason otherwise
func (c *Checker) Check(ctx context.Context, path string) (ok bool, reason string) {
	if c.MinDiskFreeMB > 0 {
		if ok, reason = c.checkDiskFree(ctx, path); !ok {
			return c.reject(reason)
		}
	}
	if c.MaxMemoryUsed > 0 {
		if ok, reason = c.checkMemory(ctx); !ok {
			return c.reject(reason)
		}
	}
	if c.MaxLoadAvg > 0 {
		if ok, reason = c.checkLoadAvg(ctx); !ok {
			return c.reject(reason)
		}
	}
	if c.MaxCPU > 0 {
		if ok, reason = c.checkCPU(ctx); !ok {
			return c.reject(reason)
		}
	}
	if c.Custom != "" {
		if ok, reason = c.checkCustom(ctx); !ok {
			return c.reject(reason)
		}
	}
	return true, ""
}

func (c *Checker) reject(reason string) (ok bool, msg string) {
	log.Printf("[WARN] build rejected, %s", reason)
	return false, reason
}

func (c *Checker) checkDiskFree(ctx context.Context, path string) (bool, string) {
	if path == "" {
		path = "/"
	}
	free, err := c.diskFree(ctx, path)
	if err != nil {
		return false, fmt.Sprintf("failed to get disk usage for %s: %v", path, err)
	}
	freeMB := int(free / (1024 * 1024)) //nolint:gosec // disk sizes fit int
	if freeMB < c.MinDiskFreeMB {
		return false, fmt.Sprintf("disk free %dMB on %s, need %dMB", freeMB, path, c.MinDiskFreeMB)
	}
	return true, ""
}

func (c *Checker) checkMemory(ctx context.Context) (bool, string) {
	used, err := c.memUsed(ctx)
	if err != nil {
		return false, fmt.Sprintf("failed to get memory: %v", err)
	}
	if int(used) >= c.MaxMemoryUsed {
		return false, fmt.Sprintf("memory at %d%%, threshold %d%%", int(used), c.MaxMemoryUsed)
	}
	return true, ""
}

func (c *Checker) checkLoadAvg(ctx context.Context) (bool, string) {
	l, err := c.loadAvg(ctx)
	if err != nil {
		return false, fmt.Sprintf("failed to get load average: %v", err)
	}
	if l >= c.MaxLoadAvg {
		return false, fmt.Sprintf("load at %.2f, threshold %.2f", l, c.MaxLoadAvg)
	}
	return true, ""
}

func (c *Checker) checkCPU(ctx context.Context) (bool, string) {
	p, err := c.cpuPercent(ctx)
	if err != nil {
		return false, fmt.Sprintf("failed to get cpu: %v", err)
	}
	if int(p) >= c.MaxCPU {
		return false, fmt.Sprintf("cpu at %d%%, threshold %d%%", int(p), c.MaxCPU)
	}
	return true, ""
}

func (c *Checker) checkCustom(ctx context.Context) (bool, string) {
	ctx, cancel := context.WithTimeout(ctx, customTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "sh", "-c", c.Custom) //nolint:gosec // check is set by operator
	if err := cmd.Run(); err != nil {
		return false, fmt.Sprintf("custom check failed: %v", err)
	}
	return true, ""
}
