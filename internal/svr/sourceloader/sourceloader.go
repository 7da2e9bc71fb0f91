// Package sourceloader implements C10: a directory of YAML source
// descriptors that are opened as server-kind sources at startup and kept
// in sync as files are added, edited, or removed, via fsnotify.
package sourceloader

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/alxayo/svr/internal/svr/source"
)

// Descriptor is one YAML source-descriptor file's contents: the encoding
// option-string to open the source with (spec §6 grammar, e.g.
// "jpeg:quality=85").
type Descriptor struct {
	Encoding string `yaml:"encoding"`
}

// Loader watches Dir for *.yaml files and reflects them into a source
// Registry as server-kind sources named after the file (minus extension).
type Loader struct {
	dir     string
	sources *source.Registry
	logger  *slog.Logger
	watcher *fsnotify.Watcher

	mu    sync.Mutex
	owned map[string]bool // source names this loader opened, for clean teardown
	done  chan struct{}
}

// New constructs a Loader rooted at dir. Call Start to perform the
// initial scan and begin watching.
func New(dir string, sources *source.Registry, logger *slog.Logger) *Loader {
	return &Loader{dir: dir, sources: sources, logger: logger, owned: make(map[string]bool), done: make(chan struct{})}
}

func sourceNameFor(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (l *Loader) loadFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		l.logger.Warn("sourceloader: read failed", "path", path, "error", err)
		return
	}
	var desc Descriptor
	if err := yaml.Unmarshal(data, &desc); err != nil {
		l.logger.Warn("sourceloader: parse failed", "path", path, "error", err)
		return
	}
	name := sourceNameFor(path)
	l.mu.Lock()
	alreadyOwned := l.owned[name]
	l.mu.Unlock()
	if alreadyOwned {
		if src, ok := l.sources.Get(name); ok {
			if err := src.SetEncoding(desc.Encoding); err != nil {
				l.logger.Warn("sourceloader: set encoding failed", "name", name, "error", err)
				return
			}
			l.logger.Info("sourceloader: updated source", "name", name, "encoding", desc.Encoding)
			return
		}
	}
	if _, err := l.sources.Open(name, source.KindServer, nil, desc.Encoding); err != nil {
		l.logger.Warn("sourceloader: open failed", "name", name, "error", err)
		return
	}
	l.mu.Lock()
	l.owned[name] = true
	l.mu.Unlock()
	l.logger.Info("sourceloader: opened source", "name", name, "encoding", desc.Encoding)
}

func (l *Loader) unloadFile(path string) {
	name := sourceNameFor(path)
	l.mu.Lock()
	if !l.owned[name] {
		l.mu.Unlock()
		return
	}
	delete(l.owned, name)
	l.mu.Unlock()
	if err := l.sources.Close(name); err != nil {
		l.logger.Warn("sourceloader: close failed", "name", name, "error", err)
	}
}

// Start performs the initial directory scan and launches the watch loop.
func (l *Loader) Start() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !isYAML(e.Name()) {
			continue
		}
		l.loadFile(filepath.Join(l.dir, e.Name()))
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(l.dir); err != nil {
		w.Close()
		return err
	}
	l.watcher = w
	go l.watchLoop()
	return nil
}

func isYAML(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}

func (l *Loader) watchLoop() {
	for {
		select {
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if !isYAML(event.Name) {
				continue
			}
			switch {
			case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
				l.loadFile(event.Name)
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				l.unloadFile(event.Name)
			}
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Warn("sourceloader: watch error", "error", err)
		case <-l.done:
			return
		}
	}
}

// Close stops the watcher. It does not close sources it opened; those
// outlive the loader unless their descriptor file is removed first.
func (l *Loader) Close() error {
	close(l.done)
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}
