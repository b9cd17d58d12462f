// Package watchstate keeps the in-memory index of a synced root and turns raw
// filesystem notifications into clean, debounced sync events. It also applies
// events received from peers to disk, marking every touched path so the
// resulting notifications are not echoed back.
package watchstate

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/treesync/internal/hasher"
	"github.com/openmined/treesync/internal/lister"
	"github.com/openmined/treesync/internal/notifier"
	"github.com/openmined/treesync/internal/syncmsg"
	"github.com/openmined/treesync/internal/utils"
)

const (
	DefaultDebounceWindow = 500 * time.Millisecond
	defaultPruneInterval  = 15 * time.Second
)

var (
	ErrNoEvent         = errors.New("watchstate: no event")
	ErrNotifierClosed  = errors.New("watchstate: notifier closed")
	ErrUnexpectedSync  = errors.New("watchstate: sync message from a non-authoritative peer")
	ErrPathOutsideRoot = utils.ErrPathOutsideRoot
)

type Option func(*WatchState)

// WithDebounceWindow sets how long a path applied from a peer stays suppressed.
func WithDebounceWindow(window time.Duration) Option {
	return func(w *WatchState) {
		if window > 0 {
			w.window = window
		}
	}
}

// WithClock replaces the wall clock used for debounce deadlines.
func WithClock(now func() time.Time) Option {
	return func(w *WatchState) {
		w.now = now
	}
}

// WatchState is safe for concurrent use. The index (files and hashes) and the
// debounce table are guarded by separate locks; neither is held across
// network I/O.
type WatchState struct {
	root          string
	lister        lister.Lister
	ignore        *lister.IgnoreList
	events        <-chan notifier.Event
	window        time.Duration
	pruneInterval time.Duration
	now           func() time.Time

	mu         sync.Mutex
	files      []string // sorted absolute paths
	fileSet    mapset.Set[string]
	fileHashes map[string]uint64
	discovered []*syncmsg.Message
	announced  map[string]uint64 // found under a new directory, awaiting its own Create

	ignoreMu    sync.Mutex
	ignoreUntil map[string]int64 // absolute path -> epoch ms deadline
}

// New indexes root and starts consuming events from n. root must be an
// absolute, symlink-free directory path matching the paths n reports.
func New(root string, n notifier.Notifier, l lister.Lister, opts ...Option) (*WatchState, error) {
	w := &WatchState{
		root:          filepath.Clean(root),
		lister:        l,
		ignore:        lister.NewIgnoreList(filepath.Clean(root)),
		events:        n.Events(),
		window:        DefaultDebounceWindow,
		pruneInterval: defaultPruneInterval,
		now:           time.Now,
		fileSet:       mapset.NewThreadUnsafeSet[string](),
		fileHashes:    make(map[string]uint64),
		announced:     make(map[string]uint64),
		ignoreUntil:   make(map[string]int64),
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := w.Index(); err != nil {
		return nil, err
	}

	slog.Info("watcher indexed", "root", w.root, "files", len(w.Files()))
	return w, nil
}

func (w *WatchState) Root() string {
	return w.root
}

// Index rescans the whole tree.
func (w *WatchState) Index() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.indexLocked()
}

// indexLocked replaces the file list. Hashes of files already known are kept
// so pending modifications still compare against the last content seen.
func (w *WatchState) indexLocked() error {
	w.ignore.Load()

	files, err := w.lister.List(w.root)
	if err != nil {
		return err
	}

	kept := make([]string, 0, len(files))
	set := mapset.NewThreadUnsafeSet[string]()
	hashes := make(map[string]uint64, len(files))

	for _, f := range files {
		h, ok := w.fileHashes[f]
		if !ok {
			h, err = hasher.File(f)
			if err != nil {
				// gone between listing and hashing
				slog.Warn("watcher index skip", "path", f, "error", err)
				continue
			}
		}
		kept = append(kept, f)
		set.Add(f)
		hashes[f] = h
	}

	for path := range w.announced {
		if !set.Contains(path) {
			delete(w.announced, path)
		}
	}

	w.files, w.fileSet, w.fileHashes = kept, set, hashes
	return nil
}

// Files returns a copy of the indexed absolute paths, sorted.
func (w *WatchState) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.files)
}

func (w *WatchState) hasFile(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fileSet.Contains(path)
}

// Snapshot reads every indexed file, keyed by root-relative slash path.
// It is not atomic with respect to concurrent changes; unreadable files are skipped.
func (w *WatchState) Snapshot() map[string][]byte {
	files := w.Files()

	out := make(map[string][]byte, len(files))
	for _, f := range files {
		rel, err := utils.RelSlash(w.root, f)
		if err != nil {
			continue
		}
		data, err := os.ReadFile(f)
		if err != nil {
			slog.Warn("watcher snapshot skip", "path", f, "error", err)
			continue
		}
		out[rel] = data
	}
	return out
}

func (w *WatchState) track(path string, h uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.fileSet.Contains(path) {
		i := sort.SearchStrings(w.files, path)
		w.files = slices.Insert(w.files, i, path)
		w.fileSet.Add(path)
	}
	w.fileHashes[path] = h
}

// untrack drops path from the index and reports whether it was indexed.
func (w *WatchState) untrack(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.fileSet.Contains(path) {
		return false
	}

	if i, ok := slices.BinarySearch(w.files, path); ok {
		w.files = slices.Delete(w.files, i, i+1)
	}
	w.fileSet.Remove(path)
	delete(w.fileHashes, path)
	delete(w.announced, path)
	return true
}

// ignored reports whether a root-relative path is excluded by the ignore rules.
func (w *WatchState) ignored(rel string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ignore.ShouldIgnorePath(rel)
}
