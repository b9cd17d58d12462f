// Package lister enumerates the files of a synced tree, honouring ignore rules.
package lister

import (
	"fmt"
	"io/fs"
	"sort"
	"sync"

	"github.com/charlievieth/fastwalk"
	"github.com/openmined/treesync/internal/utils"
)

// Lister returns the absolute paths of all regular files under root.
type Lister interface {
	List(root string) ([]string, error)
}

// Walker lists files with a parallel directory walk. Ignore rules are
// reloaded on every call so edits to the ignore file apply on the next scan.
type Walker struct{}

func NewWalker() *Walker {
	return &Walker{}
}

func (w *Walker) List(root string) ([]string, error) {
	ignore := NewIgnoreList(root)
	ignore.Load()

	var (
		files []string
		mu    sync.Mutex
	)

	conf := &fastwalk.Config{Follow: false}
	err := fastwalk.Walk(conf, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			// vanished or unreadable entries are skipped
			return nil
		}
		if path == root {
			return nil
		}

		rel, err := utils.RelSlash(root, path)
		if err != nil {
			return nil
		}

		if d.IsDir() {
			if ignore.ShouldIgnore(rel) || ignore.ShouldIgnore(rel+"/") {
				return fs.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() || ignore.ShouldIgnore(rel) {
			return nil
		}

		mu.Lock()
		files = append(files, path)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", root, err)
	}

	sort.Strings(files)
	return files, nil
}
