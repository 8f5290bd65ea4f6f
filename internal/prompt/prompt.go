package prompt

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// DefaultSystemPrompt is used when neither a prompt string nor a prompt
// file is configured.
const DefaultSystemPrompt = `You are the virtual assistant of "El Rincon del Codigo", a coffee shop for programmers. Opening hours are 9 AM to 7 PM, Monday through Saturday. The house specialty is the "Cafe Binario". There is currently a 2-for-1 promotion on "Algorithmic Muffins" every Friday. Answer politely and concisely based on this information.`

// Source provides the conversation system prompt. When backed by a file
// it hot-reloads on change, so the prompt can be edited without a
// restart.
type Source struct {
	mu      sync.RWMutex
	current string

	path    string
	watcher *fsnotify.Watcher
}

// Static returns a Source with a fixed prompt. Empty falls back to
// DefaultSystemPrompt.
func Static(text string) *Source {
	if strings.TrimSpace(text) == "" {
		text = DefaultSystemPrompt
	}
	return &Source{current: text}
}

// FromFile returns a Source backed by path. The file must exist and be
// non-empty at startup; later changes are picked up by Watch.
func FromFile(path string) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt file: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, fmt.Errorf("prompt file %s is empty", path)
	}
	return &Source{current: text, path: path}, nil
}

// Get returns the current system prompt.
func (s *Source) Get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Watch starts watching the backing file for changes until ctx is done.
// No-op for static sources.
func (s *Source) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create prompt watcher: %w", err)
	}
	s.watcher = watcher

	// Watch the directory: editors replace files on save, which drops
	// a watch registered on the file itself.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch prompt directory: %w", err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(s.path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				s.reload()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("prompt watcher error", "error", err)
			}
		}
	}()

	slog.Info("watching system prompt file", "path", s.path)
	return nil
}

func (s *Source) reload() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		slog.Warn("prompt reload failed", "path", s.path, "error", err)
		return
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		slog.Warn("prompt reload skipped: file is empty", "path", s.path)
		return
	}

	s.mu.Lock()
	s.current = text
	s.mu.Unlock()
	slog.Info("system prompt reloaded", "path", s.path, "chars", len(text))
}
