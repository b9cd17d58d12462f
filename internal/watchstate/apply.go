package watchstate

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/openmined/treesync/internal/hasher"
	"github.com/openmined/treesync/internal/syncmsg"
	"github.com/openmined/treesync/internal/utils"
)

// HandleMessage applies a message received from a peer to the local tree.
// An authoritative receiver (the server) refuses Sync messages with
// ErrUnexpectedSync. Every path written, removed or renamed is marked as
// modified before and after the filesystem call. Paths matching the ignore
// rules are skipped without touching the disk.
func (w *WatchState) HandleMessage(msg *syncmsg.Message, authoritative bool) error {
	if msg == nil {
		return errors.New("watchstate: nil message")
	}

	switch data := msg.Data.(type) {
	case *syncmsg.Sync:
		if authoritative {
			return ErrUnexpectedSync
		}
		return w.applySync(data)
	case *syncmsg.FileWrite:
		return w.applyWrite(data.Path, data.Contents)
	case *syncmsg.FileDelete:
		return w.applyDelete(data.Path)
	case *syncmsg.FileMove:
		return w.applyMove(data.OldPath, data.NewPath)
	default:
		return fmt.Errorf("watchstate: unsupported payload %T for %s", msg.Data, msg.Type)
	}
}

// applySync writes every file of a snapshot. Local files absent from the
// snapshot are left alone.
func (w *WatchState) applySync(s *syncmsg.Sync) error {
	var errs []error
	for rel, contents := range s.Files {
		if err := w.applyWrite(rel, contents); err != nil {
			errs = append(errs, err)
		}
	}
	slog.Info("watcher sync applied", "files", len(s.Files), "failed", len(errs))
	return errors.Join(errs...)
}

func (w *WatchState) applyWrite(rel string, contents []byte) error {
	path, err := utils.JoinRel(w.root, rel)
	if err != nil {
		return fmt.Errorf("write %q: %w", rel, err)
	}
	if w.skipIgnored("write", rel) {
		return nil
	}

	w.MarkAsModified(path)
	defer w.MarkAsModified(path)

	if err := utils.EnsureParent(path); err != nil {
		return fmt.Errorf("write %q: %w", rel, err)
	}
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		return fmt.Errorf("write %q: %w", rel, err)
	}

	w.track(path, hasher.Sum64(contents))
	slog.Debug("watcher applied write", "path", rel, "size", humanize.Bytes(uint64(len(contents))))
	return nil
}

func (w *WatchState) applyDelete(rel string) error {
	path, err := utils.JoinRel(w.root, rel)
	if err != nil {
		return fmt.Errorf("delete %q: %w", rel, err)
	}
	if w.skipIgnored("delete", rel) {
		return nil
	}

	w.MarkAsModified(path)
	defer w.MarkAsModified(path)

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %q: %w", rel, err)
	}

	w.untrack(path)
	slog.Debug("watcher applied delete", "path", rel)
	return nil
}

func (w *WatchState) applyMove(oldRel, newRel string) error {
	oldPath, err := utils.JoinRel(w.root, oldRel)
	if err != nil {
		return fmt.Errorf("move %q: %w", oldRel, err)
	}
	newPath, err := utils.JoinRel(w.root, newRel)
	if err != nil {
		return fmt.Errorf("move %q: %w", newRel, err)
	}
	if w.skipIgnored("move", oldRel) || w.skipIgnored("move", newRel) {
		return nil
	}

	w.MarkAsModified(oldPath)
	w.MarkAsModified(newPath)
	defer func() {
		w.MarkAsModified(oldPath)
		w.MarkAsModified(newPath)
	}()

	if err := utils.EnsureParent(newPath); err != nil {
		return fmt.Errorf("move %q: %w", newRel, err)
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		return fmt.Errorf("move %q to %q: %w", oldRel, newRel, err)
	}

	w.untrack(oldPath)
	h, err := hasher.File(newPath)
	if err != nil {
		return fmt.Errorf("move %q: %w", newRel, err)
	}
	w.track(newPath, h)

	slog.Debug("watcher applied move", "from", oldRel, "to", newRel)
	return nil
}

func (w *WatchState) skipIgnored(op, rel string) bool {
	if !w.ignored(rel) {
		return false
	}
	slog.Warn("watcher skipped ignored path from peer", "op", op, "path", rel)
	return true
}
