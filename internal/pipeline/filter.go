package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"streamwatch/internal/logger"
	"streamwatch/internal/model"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// Admission decides whether a path is a copy candidate. Name rules are
// matched case-insensitively against the base name, or against the path
// relative to Root when a pattern contains a slash.
type Admission struct {
	Root       string
	Extensions []string
	Include    []string
	Exclude    []string
	MinSize    int64
	MaxSize    int64
}

func (a *Admission) AdmitName(path string) (bool, string) {
	name := strings.ToLower(filepath.Base(path))
	rel := strings.ToLower(a.relPath(path))

	for _, pattern := range a.Exclude {
		if matchPattern(pattern, name, rel) {
			return false, fmt.Sprintf("matches exclude pattern %q", pattern)
		}
	}

	if len(a.Include) > 0 {
		included := slices.ContainsFunc(a.Include, func(pattern string) bool {
			return matchPattern(pattern, name, rel)
		})
		if !included {
			return false, "does not match any include pattern"
		}
	}

	if len(a.Extensions) > 0 {
		ext := strings.TrimPrefix(filepath.Ext(name), ".")
		if !slices.Contains(a.Extensions, ext) {
			return false, fmt.Sprintf("extension %q not allowed", ext)
		}
	}

	return true, ""
}

func (a *Admission) AdmitSize(size int64) (bool, string) {
	if size < a.MinSize {
		return false, fmt.Sprintf("file too small (%s < %s)",
			humanize.IBytes(uint64(size)), humanize.IBytes(uint64(a.MinSize)))
	}

	if a.MaxSize > 0 && size > a.MaxSize {
		return false, fmt.Sprintf("file too large (%s > %s)",
			humanize.IBytes(uint64(size)), humanize.IBytes(uint64(a.MaxSize)))
	}

	return true, ""
}

func (a *Admission) Admit(path string, size int64) (bool, string) {
	if ok, reason := a.AdmitName(path); !ok {
		return false, reason
	}

	return a.AdmitSize(size)
}

func (a *Admission) relPath(path string) string {
	if a.Root == "" {
		return filepath.ToSlash(filepath.Base(path))
	}

	rel, err := filepath.Rel(a.Root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(filepath.Base(path))
	}

	return filepath.ToSlash(rel)
}

func matchPattern(pattern, name, rel string) bool {
	pattern = strings.ToLower(pattern)
	target := name
	if strings.Contains(pattern, "/") {
		target = rel
	}

	matched, err := doublestar.Match(pattern, target)
	if err != nil {
		logger.Log.Debug("bad glob pattern",
			zap.String("pattern", pattern),
			zap.Error(err))
		return false
	}

	return matched
}

// Filter forwards only events for regular files that pass the admission
// rules at the time the event is seen.
func Filter(inCh <-chan model.FileEvent, a *Admission) <-chan model.FileEvent {
	outCh := make(chan model.FileEvent, cap(inCh))

	go func() {
		defer close(outCh)

		for event := range inCh {
			if ok, reason := a.AdmitName(event.Path); !ok {
				logger.Log.Debug("ignoring file",
					zap.String("path", event.Path),
					zap.String("reason", reason))
				continue
			}

			info, err := os.Stat(event.Path)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}

			if ok, reason := a.AdmitSize(info.Size()); !ok {
				logger.Log.Debug("ignoring file",
					zap.String("path", event.Path),
					zap.String("reason", reason))
				continue
			}

			outCh <- event
		}
	}()

	return outCh
}
