package shader

import (
	"errors"
	"os"
	"sync"
	"time"

	"github.com/spaghettifunk/magma/engine/core"
	"github.com/spaghettifunk/magma/engine/renderer/metadata"
)

// Source names one shader file to compile.
type Source struct {
	Path  string
	Stage metadata.ShaderStage
}

type cacheKey struct {
	path  string
	stage metadata.ShaderStage
}

type cacheEntry struct {
	modTime time.Time
	size    int64
	code    []uint32
	err     error
}

/**
 * @brief A Compiler that remembers the output per source file until the file
 * changes on disk. Failures are remembered too, so a broken file is compiled
 * once per edit.
 */
type Cache struct {
	// the compiler used on a miss, picked from the extension when nil
	base    Compiler
	workers int

	mu      sync.Mutex
	entries map[cacheKey]cacheEntry
}

func NewCache(base Compiler, workers int) *Cache {
	if workers < 1 {
		workers = 1
	}
	return &Cache{
		base:    base,
		workers: workers,
		entries: make(map[cacheKey]cacheEntry),
	}
}

func (c *Cache) compilerFor(path string) Compiler {
	if c.base != nil {
		return c.base
	}
	return CompilerFor(path)
}

// Compile serves path from the cache when its size and modification time
// are unchanged. Files that cannot be stat'ed bypass the cache.
func (c *Cache) Compile(path string, stage metadata.ShaderStage) ([]uint32, error) {
	info, err := os.Stat(path)
	if err != nil {
		return c.compilerFor(path).Compile(path, stage)
	}
	key := cacheKey{path: path, stage: stage}

	c.mu.Lock()
	entry, ok := c.entries[key]
	c.mu.Unlock()
	if ok && entry.size == info.Size() && entry.modTime.Equal(info.ModTime()) {
		if entry.err != nil {
			return nil, entry.err
		}
		return append([]uint32(nil), entry.code...), nil
	}

	code, err := c.compilerFor(path).Compile(path, stage)
	var compileErr *core.CompileError
	if err == nil || errors.As(err, &compileErr) {
		c.mu.Lock()
		c.entries[key] = cacheEntry{modTime: info.ModTime(), size: info.Size(), code: code, err: err}
		c.mu.Unlock()
	}
	if err != nil {
		return nil, err
	}
	return append([]uint32(nil), code...), nil
}

// Warm compiles sources concurrently so later Compile calls are hits. Errors
// are joined; failed sources are compiled again, or served from the failure
// cache, when a unit asks for them.
func (c *Cache) Warm(sources []Source) error {
	if len(sources) == 0 {
		return nil
	}
	workers := min(c.workers, len(sources))
	js, err := NewJobSystem(workers, len(sources))
	if err != nil {
		return err
	}

	var mu sync.Mutex
	var errs []error
	seen := make(map[cacheKey]bool)
	for _, s := range sources {
		key := cacheKey{path: s.Path, stage: s.Stage}
		if seen[key] {
			continue
		}
		seen[key] = true
		js.Submit(JobTask{
			OnStart: func() error {
				_, err := c.Compile(s.Path, s.Stage)
				return err
			},
			OnFailure: func(err error) {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			},
		})
	}
	js.Shutdown()
	core.LogDebug("warmed %d shader sources with %d workers", len(seen), workers)
	return errors.Join(errs...)
}

// Forget drops every entry.
func (c *Cache) Forget() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[cacheKey]cacheEntry)
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
