package handlebars

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ----------------------------- Template Reload Manager -----------------------------

// ReloadCallback is called when a watched file changes. template is nil for
// a partial file and when err is set.
type ReloadCallback func(filename string, template *Template, err error)

// ReloadManager polls template files and recompiles the ones that change.
type ReloadManager struct {
	mu            sync.RWMutex
	watched       map[string]*watchInfo
	callbacks     []ReloadCallback
	stopChan      chan struct{}
	stopped       bool
	checkInterval time.Duration
	files         *FileCache
	logger        *slog.Logger
}

type watchInfo struct {
	lastModTime time.Time
	template    *Template
	partial     bool
}

// NewReloadManager creates a reload manager compiling through files. A nil
// files uses the package file cache.
func NewReloadManager(checkInterval time.Duration, files *FileCache, logger *slog.Logger) *ReloadManager {
	if checkInterval == 0 {
		checkInterval = 1 * time.Second
	}
	if files == nil {
		files = globalFileCache
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReloadManager{
		watched:       make(map[string]*watchInfo),
		stopChan:      make(chan struct{}),
		checkInterval: checkInterval,
		files:         files,
		logger:        logger,
	}
}

// WatchFile adds a compiled template file to be watched for changes.
func (rm *ReloadManager) WatchFile(filename string, template *Template) error {
	return rm.watch(filename, template, false)
}

func (rm *ReloadManager) watch(filename string, template *Template, partial bool) error {
	info, err := os.Stat(filename)
	if err != nil {
		return fmt.Errorf("watching file %q: %w", filename, err)
	}
	rm.mu.Lock()
	rm.watched[filename] = &watchInfo{
		lastModTime: info.ModTime(),
		template:    template,
		partial:     partial,
	}
	rm.mu.Unlock()
	return nil
}

// WatchDirectory watches every file in dir ending in ext. Partial files
// (_name<ext>) are watched without being compiled on their own; a template
// that fails to compile is skipped.
func (rm *ReloadManager) WatchDirectory(dir, ext string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading directory %q: %w", dir, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ext {
			continue
		}
		filename := filepath.Join(dir, name)
		if isPartialFile(name) {
			if err := rm.watch(filename, nil, true); err != nil {
				return err
			}
			continue
		}
		tmpl, err := rm.files.CompileFile(filename)
		if err != nil {
			rm.logger.Warn("skipping template", "file", filename, "error", err)
			continue
		}
		if err := rm.WatchFile(filename, tmpl); err != nil {
			return err
		}
	}
	return nil
}

// AddCallback adds a callback to be called when templates are reloaded.
func (rm *ReloadManager) AddCallback(callback ReloadCallback) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.callbacks = append(rm.callbacks, callback)
}

// Start begins the file watching process.
func (rm *ReloadManager) Start() {
	go rm.watchLoop()
}

// Stop stops the file watching process. It is safe to call more than once.
func (rm *ReloadManager) Stop() {
	rm.mu.Lock()
	if !rm.stopped {
		rm.stopped = true
		close(rm.stopChan)
	}
	rm.mu.Unlock()
}

// GetTemplate returns the current template for a file, reloading it first
// when it changed since the last check.
func (rm *ReloadManager) GetTemplate(filename string) (*Template, error) {
	rm.mu.RLock()
	info, exists := rm.watched[filename]
	rm.mu.RUnlock()

	if !exists || info.partial {
		return rm.files.CompileFile(filename)
	}
	if err := rm.checkFile(filename); err != nil {
		return nil, err
	}
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return info.template, nil
}

func (rm *ReloadManager) watchLoop() {
	ticker := time.NewTicker(rm.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rm.stopChan:
			return
		case <-ticker.C:
			rm.CheckNow()
		}
	}
}

// CheckNow checks all watched files for modifications.
func (rm *ReloadManager) CheckNow() {
	rm.mu.RLock()
	files := make([]string, 0, len(rm.watched))
	for filename := range rm.watched {
		files = append(files, filename)
	}
	rm.mu.RUnlock()

	for _, filename := range files {
		_ = rm.checkFile(filename)
	}
}

func (rm *ReloadManager) checkFile(filename string) error {
	stat, err := os.Stat(filename)
	if err != nil {
		// the file may be mid-rewrite; try again on the next tick
		return nil
	}

	rm.mu.RLock()
	info, exists := rm.watched[filename]
	changed := exists && stat.ModTime().After(info.lastModTime)
	rm.mu.RUnlock()
	if !changed {
		return nil
	}

	rm.logger.Debug("template changed", "file", filename)
	if info.partial {
		rm.mu.Lock()
		info.lastModTime = stat.ModTime()
		rm.mu.Unlock()
		rm.notify(filename, nil, nil)
		return nil
	}

	tmpl, err := rm.files.CompileFile(filename)
	if err != nil {
		// report a broken edit once; the previous template stays live
		rm.mu.Lock()
		info.lastModTime = stat.ModTime()
		rm.mu.Unlock()
		err = fmt.Errorf("reloading template %q: %w", filename, err)
		rm.notify(filename, nil, err)
		return err
	}

	rm.mu.Lock()
	info.lastModTime = stat.ModTime()
	info.template = tmpl
	rm.mu.Unlock()
	rm.notify(filename, tmpl, nil)
	return nil
}

func (rm *ReloadManager) notify(filename string, tmpl *Template, err error) {
	rm.mu.RLock()
	callbacks := append([]ReloadCallback(nil), rm.callbacks...)
	rm.mu.RUnlock()
	for _, callback := range callbacks {
		callback(filename, tmpl, err)
	}
}

func isPartialFile(name string) bool {
	return len(name) > 1 && name[0] == '_'
}
