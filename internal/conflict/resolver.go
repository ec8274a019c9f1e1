package conflict

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"streamwatch/internal/logger"
	"streamwatch/internal/util"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrUnresolvable means the rename pattern cannot produce a free path.
// Retrying with the same pattern cannot change that.
var ErrUnresolvable = errors.New("unresolvable collision")

const maxRenameAttempts = 10_000

type Action int

const (
	ActionWrite Action = iota
	ActionReplace
	ActionSkip
)

type Decision struct {
	Path   string
	Action Action
}

// Resolver applies a collision Policy. Paths handed out by Resolve count as
// occupied until Release, so concurrent workers never pick the same name.
type Resolver struct {
	policy Policy

	mu       sync.Mutex
	counters map[string]int
	claimed  map[string]int

	now    func() time.Time
	exists func(string) bool
}

func NewResolver(policy Policy) *Resolver {
	if policy == nil {
		policy = Rename{Pattern: DefaultPattern}
	}

	return &Resolver{
		policy:   policy,
		counters: make(map[string]int),
		claimed:  make(map[string]int),
		now:      time.Now,
		exists:   util.Exists,
	}
}

func (r *Resolver) Policy() Policy {
	return r.policy
}

// Resolve returns where a file proposed for dst should be written. A Decision
// other than ActionSkip must be followed by Release once the write finished;
// skip decisions and errors hold no claim.
func (r *Resolver) Resolve(dst string) (Decision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.occupied(dst) {
		r.claimed[dst]++
		return Decision{Path: dst, Action: ActionWrite}, nil
	}

	switch p := r.policy.(type) {
	case Overwrite:
		r.claimed[dst]++
		logger.Log.Info("collision: overwriting",
			zap.String("path", dst))
		return Decision{Path: dst, Action: ActionReplace}, nil

	case Skip:
		logger.Log.Info("collision: skipping",
			zap.String("path", dst))
		return Decision{Path: dst, Action: ActionSkip}, nil

	case Rename:
		path, err := r.rename(dst, p.Pattern)
		if err != nil {
			return Decision{Path: dst, Action: ActionSkip}, err
		}

		r.claimed[path]++
		logger.Log.Info("collision: renamed",
			zap.String("original", dst),
			zap.String("renamed", path))
		return Decision{Path: path, Action: ActionWrite}, nil

	default:
		return Decision{}, fmt.Errorf("unknown collision policy: %T", r.policy)
	}
}

func (r *Resolver) Release(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.claimed[path] <= 1 {
		delete(r.claimed, path)
		return
	}
	r.claimed[path]--
}

func (r *Resolver) rename(dst, pattern string) (string, error) {
	dir := filepath.Dir(dst)
	base := filepath.Base(dst)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	ext = strings.TrimPrefix(ext, ".")

	key := dir + string(filepath.Separator) + base
	hasCounter := strings.Contains(pattern, "{n}")
	now := r.now()

	start := r.counters[key] + 1
	for n := start; n < start+maxRenameAttempts; n++ {
		candidate := filepath.Join(dir, Expand(pattern, name, ext, n, now))
		if candidate != dst && !r.occupied(candidate) {
			if hasCounter {
				r.counters[key] = n
			}
			return candidate, nil
		}

		if !hasCounter {
			return "", fmt.Errorf("%w: pattern %q yields existing path %s", ErrUnresolvable, pattern, candidate)
		}
	}

	return "", fmt.Errorf("%w: no free name for %s after %d attempts", ErrUnresolvable, dst, maxRenameAttempts)
}

func (r *Resolver) occupied(path string) bool {
	if _, ok := r.claimed[path]; ok {
		return true
	}

	return r.exists(path)
}

// Expand substitutes rename tokens. Time tokens use now, i.e. resolution
// time rather than the source file's timestamps. A trailing dot left by an
// empty {ext} is dropped.
func Expand(pattern, name, ext string, n int, now time.Time) string {
	out := strings.NewReplacer(
		"{name}", name,
		"{ext}", ext,
		"{n}", strconv.Itoa(n),
		"{datetime}", now.Format("2006-01-02_15-04-05"),
		"{date}", now.Format("2006-01-02"),
		"{time}", now.Format("15-04-05"),
		"{ts}", strconv.FormatInt(now.Unix(), 10),
	).Replace(pattern)

	if ext == "" {
		out = strings.TrimSuffix(out, ".")
	}

	return out
}
