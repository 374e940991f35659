// Package delivery resolves user ids to delivery addresses and pushes
// conversation messages out through a log or webhook sender.
package delivery

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sahilm/fuzzy"
	"gopkg.in/yaml.v3"

	"github.com/iliagerman/mordecai-sub000/internal/fsutil"
	"github.com/iliagerman/mordecai-sub000/internal/logging"
)

// Entry is one user in the address book.
type Entry struct {
	Address string `yaml:"address"`
	Name    string `yaml:"name,omitempty"`
}

type bookFile struct {
	Users map[string]Entry `yaml:"users"`
}

// AddressBook maps user ids to addresses. It is loaded from a YAML file
// and can follow edits to that file while the process runs:
//
//	users:
//	  alice:
//	    address: "telegram:1234"
//	    name: Alice
type AddressBook struct {
	path   string
	logger *logging.Logger

	mu      sync.RWMutex
	entries map[string]Entry

	watcher  *fsnotify.Watcher
	stop     chan struct{}
	done     chan struct{}
	debounce *time.Timer
}

// NewAddressBook creates an in-memory address book.
func NewAddressBook(entries map[string]Entry) *AddressBook {
	b := &AddressBook{entries: make(map[string]Entry, len(entries)), logger: logging.NewNop()}
	for id, e := range entries {
		b.entries[id] = e
	}
	return b
}

// LoadAddressBook reads path. A missing file yields an empty book so the
// service can start before any owner is registered.
func LoadAddressBook(path string, logger *logging.Logger) (*AddressBook, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	b := &AddressBook{path: path, logger: logger.WithComponent("address_book"), entries: map[string]Entry{}}
	if err := b.Reload(); err != nil {
		return nil, err
	}
	return b, nil
}

// Reload re-reads the backing file, keeping the previous entries when the
// file is malformed.
func (b *AddressBook) Reload() error {
	if b.path == "" {
		return nil
	}
	data, ok, err := fsutil.ReadFileIfExists(b.path)
	if err != nil {
		return fmt.Errorf("reading address book: %w", err)
	}
	if !ok {
		b.replace(map[string]Entry{})
		return nil
	}
	var f bookFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parsing address book %s: %w", b.path, err)
	}
	entries := make(map[string]Entry, len(f.Users))
	for id, e := range f.Users {
		if e.Address == "" {
			continue
		}
		entries[id] = e
	}
	b.replace(entries)
	return nil
}

func (b *AddressBook) replace(entries map[string]Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = entries
}

// Lookup returns the entry for userID.
func (b *AddressBook) Lookup(userID string) (Entry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[userID]
	return e, ok
}

// Set adds or replaces an entry in memory.
func (b *AddressBook) Set(userID string, e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[userID] = e
}

// Users returns the known user ids, sorted.
func (b *AddressBook) Users() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := make([]string, 0, len(b.entries))
	for id := range b.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Suggest returns known user ids that fuzzily match userID, best first.
func (b *AddressBook) Suggest(userID string, limit int) []string {
	if userID == "" {
		return nil
	}
	matches := fuzzy.Find(userID, b.Users())
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if m.Str == userID {
			continue
		}
		out = append(out, m.Str)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Watch reloads the book whenever its file changes. The parent directory is
// watched because editors and atomic writers replace the file.
func (b *AddressBook) Watch() error {
	if b.path == "" {
		return errors.New("address book has no backing file")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		_ = watcher.Close()
		return err
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	b.watcher = watcher
	b.stop = make(chan struct{})
	b.done = make(chan struct{})
	go b.watchLoop()
	return nil
}

func (b *AddressBook) watchLoop() {
	defer close(b.done)
	target := filepath.Clean(b.path)
	for {
		select {
		case <-b.stop:
			return
		case event, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				b.scheduleReload()
			}
		case err, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
			b.logger.Warn("address book watcher error", "error", err)
		}
	}
}

func (b *AddressBook) scheduleReload() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.debounce != nil {
		b.debounce.Stop()
	}
	b.debounce = time.AfterFunc(100*time.Millisecond, func() {
		if err := b.Reload(); err != nil {
			b.logger.Warn("address book reload failed", "error", err)
			return
		}
		b.logger.Info("address book reloaded", "users", len(b.Users()))
	})
}

// Close stops watching.
func (b *AddressBook) Close() error {
	if b.watcher == nil {
		return nil
	}
	close(b.stop)
	err := b.watcher.Close()
	<-b.done
	b.mu.Lock()
	if b.debounce != nil {
		b.debounce.Stop()
	}
	b.mu.Unlock()
	b.watcher = nil
	return err
}
