package loader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/domresolve/cache"
	"github.com/hazyhaar/domresolve/selctx"
	"github.com/hazyhaar/domresolve/selector"
)

// Options configures a Loader.
type Options struct {
	// BaseDir is the root of the selector definition tree.
	BaseDir string
	// CacheSize bounds the loaded-set cache; default 100.
	CacheSize int
	// CacheTTL is how long a loaded set stays cached; default 5m.
	CacheTTL time.Duration
	// Concurrency bounds parallel file reads; default 5.
	Concurrency int
	Logger      *slog.Logger
}

func (o *Options) applyDefaults() {
	if o.CacheSize <= 0 {
		o.CacheSize = 100
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = 5 * time.Minute
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 5
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Set is the outcome of loading selectors for one context and DOM
// state. Warnings carry recoverable problems (skipped files, fallback);
// a Set with warnings is still usable.
type Set struct {
	Path      string                                `json:"path"`
	DOMState  string                                `json:"dom_state,omitempty"`
	Selectors map[string]*selector.SemanticSelector `json:"selectors"`
	Warnings  []string                              `json:"warnings,omitempty"`
	// Fallback marks a set served without DOM-state filtering because
	// filtering would have left nothing.
	Fallback bool `json:"fallback,omitempty"`
}

// Names returns the selector names sorted.
func (s *Set) Names() []string {
	out := make([]string, 0, len(s.Selectors))
	for name := range s.Selectors {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Loader loads, layers, filters and caches selector sets.
type Loader struct {
	opts  Options
	cache *cache.LRU
	sem   chan struct{}
}

// New builds a Loader.
func New(opts Options) *Loader {
	opts.applyDefaults()
	return &Loader{
		opts: opts,
		cache: cache.New(cache.Options{
			MaxSize:    opts.CacheSize,
			DefaultTTL: opts.CacheTTL,
			Logger:     opts.Logger,
		}),
		sem: make(chan struct{}, opts.Concurrency),
	}
}

// LoadForContext returns the selector set for a context path and DOM
// state. Levels are layered root-down: a deeper definition shadows a
// shallower one of the same name, then the level's overrides apply.
// A missing directory level simply contributes nothing. If DOM-state
// filtering would remove every selector, the unfiltered set is served
// instead and the fallback is flagged.
func (l *Loader) LoadForContext(ctx context.Context, path, domState string) (*Set, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}
	cacheKey := path + "|" + domState
	if v, ok := l.cache.Get(cacheKey); ok {
		return v.(*Set), nil
	}

	set := &Set{
		Path:      path,
		DOMState:  domState,
		Selectors: make(map[string]*selector.SemanticSelector),
	}

	dir := l.opts.BaseDir
	levels := append([]string{""}, strings.Split(path, "/")...)
	for _, level := range levels {
		if level != "" {
			dir = filepath.Join(dir, level)
		}
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			// Nothing defined at this depth.
			continue
		}
		if err := l.mergeLevel(ctx, dir, set); err != nil {
			return nil, err
		}
	}

	l.filterByState(set)
	if err := l.cache.Put(cacheKey, set, 0, 0); err != nil {
		l.opts.Logger.Warn("loader: cache put failed", "key", cacheKey, "error", err)
	}
	l.opts.Logger.Debug("loader: loaded context",
		"path", path, "dom_state", domState,
		"selectors", len(set.Selectors), "warnings", len(set.Warnings))
	return set, nil
}

// mergeLevel reads one directory's selector files concurrently and
// merges them into the set, then applies the level's overrides.
func (l *Loader) mergeLevel(ctx context.Context, dir string, set *Set) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("loader: read dir %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == overridesFileName {
			continue
		}
		if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
			files = append(files, filepath.Join(dir, name))
		}
	}
	sort.Strings(files)

	type fileResult struct {
		path      string
		selectors []*selector.SemanticSelector
		err       error
	}
	results := make([]fileResult, len(files))
	var wg sync.WaitGroup
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		wg.Add(1)
		l.sem <- struct{}{}
		go func(i int, f string) {
			defer wg.Done()
			defer func() { <-l.sem }()
			sels, err := readDefinitionFile(f)
			results[i] = fileResult{path: f, selectors: sels, err: err}
		}(i, f)
	}
	wg.Wait()

	for _, r := range results {
		if r.err != nil {
			// Malformed file: skip it, keep the rest.
			set.Warnings = append(set.Warnings, r.err.Error())
			l.opts.Logger.Warn("loader: skipping selector file", "file", r.path, "error", r.err)
			continue
		}
		for _, s := range r.selectors {
			set.Selectors[s.Name] = s
		}
	}

	overrides, err := readOverridesFile(filepath.Join(dir, overridesFileName))
	if err != nil {
		set.Warnings = append(set.Warnings, err.Error())
		l.opts.Logger.Warn("loader: skipping overrides", "dir", dir, "error", err)
		return nil
	}
	for _, ov := range overrides {
		base, ok := set.Selectors[ov.Selector]
		if !ok {
			set.Warnings = append(set.Warnings,
				fmt.Sprintf("loader: override in %s targets unknown selector %q", dir, ov.Selector))
			continue
		}
		patched, err := applyOverride(base, ov)
		if err != nil {
			set.Warnings = append(set.Warnings, err.Error())
			continue
		}
		set.Selectors[ov.Selector] = patched
	}
	return nil
}

// filterByState drops selectors not allowed under the set's DOM state,
// falling back to the unfiltered set when nothing would remain.
func (l *Loader) filterByState(set *Set) {
	if set.DOMState == "" || set.DOMState == string(selctx.StateUnknown) || len(set.Selectors) == 0 {
		return
	}
	filtered := make(map[string]*selector.SemanticSelector, len(set.Selectors))
	for name, s := range set.Selectors {
		if s.AllowedInState(set.DOMState) {
			filtered[name] = s
		}
	}
	if len(filtered) == 0 {
		set.Fallback = true
		set.Warnings = append(set.Warnings,
			fmt.Sprintf("loader: no selector allows dom state %q under %s; serving unfiltered set", set.DOMState, set.Path))
		l.opts.Logger.Warn("loader: dom-state fallback", "path", set.Path, "dom_state", set.DOMState)
		return
	}
	set.Selectors = filtered
}

// Preload warms the cache for the given context paths under one DOM
// state. Load errors are logged, not returned: preloading is advisory.
func (l *Loader) Preload(ctx context.Context, paths []string, domState string) {
	for _, p := range paths {
		if ctx.Err() != nil {
			return
		}
		if _, err := l.LoadForContext(ctx, p, domState); err != nil {
			l.opts.Logger.Warn("loader: preload failed", "path", p, "error", err)
		}
	}
}

// Invalidate drops cached sets whose context path starts with prefix;
// empty prefix drops everything.
func (l *Loader) Invalidate(prefix string) int {
	removed := l.cache.DeleteWhere(func(key string) bool {
		return strings.HasPrefix(key, prefix)
	})
	return len(removed)
}

// CacheStats exposes the loader cache counters.
func (l *Loader) CacheStats() cache.Stats { return l.cache.Stats() }

func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("loader: empty context path")
	}
	p, s, tr := selctx.SplitPath(path)
	if err := selctx.Validate(p, s, tr); err != nil {
		return fmt.Errorf("loader: %w", err)
	}
	return nil
}
