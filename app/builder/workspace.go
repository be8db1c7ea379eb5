package builder

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/go-pkgz/lgr"
	"github.com/otiai10/copy"
)

// workspace returns directory the build runs in and a cleanup func.
// In shared mode it is the configured work dir itself, in isolated mode a private copy of it.
func (b *Builder) workspace(id string) (dir string, cleanup func(), err error) {
	if !b.Isolate {
		return b.WorkDir, func() {}, nil
	}

	dir, err = os.MkdirTemp(b.TempDir, "apkbuild-"+id+"-")
	if err != nil {
		return "", func() {}, fmt.Errorf("failed to make build workspace: %w", err)
	}
	cleanup = func() {
		if e := os.RemoveAll(dir); e != nil {
			log.Printf("[WARN] can't remove workspace %s, %v", dir, e)
		}
	}
	if err = copyTree(b.WorkDir, dir, append([]string{b.ArtifactsDir}, b.SkipCopy...)...); err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("failed to copy %s to workspace: %w", b.WorkDir, err)
	}
	log.Printf("[DEBUG] build %s workspace %s", id, dir)
	return dir, cleanup, nil
}

// copyTree copies src into existing dst keeping symlinks as links. Paths listed in skip are not copied,
// nor their "<path>-*" siblings, i.e. sqlite wal and shm files next to the db or rotated logs.
func copyTree(src, dst string, skip ...string) error {
	var skipped []string
	for _, s := range skip {
		if s == "" {
			continue
		}
		if abs, err := filepath.Abs(s); err == nil {
			skipped = append(skipped, abs)
		}
	}

	return copy.Copy(src, dst, copy.Options{
		OnSymlink: func(string) copy.SymlinkAction { return copy.Shallow },
		Skip: func(_ os.FileInfo, path, _ string) (bool, error) {
			abs, err := filepath.Abs(path)
			if err != nil {
				return false, err
			}
			for _, s := range skipped {
				if abs == s || strings.HasPrefix(abs, s+"-") {
					return true, nil
				}
			}
			return false, nil
		},
	})
}
