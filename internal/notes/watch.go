package notes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"

	apperrors "github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/errors"
)

// SyncResult counts what Sync changed.
type SyncResult struct {
	Upserted  int `json:"upserted"`
	Unchanged int `json:"unchanged"`
	Deleted   int `json:"deleted"`
}

// Sync upserts every note in ns into store. Notes whose stored copy has the
// same title, content, tags and pin state are left alone, so reloading an
// untouched file does not make them look freshly edited. Missing timestamps
// are filled with now, keeping the stored CreatedAt. With prune set, stored
// notes absent from ns are deleted so the store mirrors the file.
func Sync(ctx context.Context, store Store, ns []Note, now time.Time, prune bool) (SyncResult, error) {
	var res SyncResult
	keep := make(map[string]struct{}, len(ns))
	for _, n := range ns {
		keep[n.ID] = struct{}{}
		existing, err := store.Get(ctx, n.ID)
		switch {
		case err == nil:
			if sameContent(existing, n) && (n.UpdatedAt.IsZero() || n.UpdatedAt.Equal(existing.UpdatedAt)) {
				res.Unchanged++
				continue
			}
			if n.CreatedAt.IsZero() {
				n.CreatedAt = existing.CreatedAt
			}
		case !errors.Is(err, apperrors.ErrNoteNotFound):
			return res, fmt.Errorf("syncing note %s: %w", n.ID, err)
		}
		if n.CreatedAt.IsZero() {
			n.CreatedAt = now.UTC()
		}
		if n.UpdatedAt.IsZero() {
			n.UpdatedAt = now.UTC()
		}
		if _, err := store.Upsert(ctx, n); err != nil {
			return res, fmt.Errorf("syncing note %s: %w", n.ID, err)
		}
		res.Upserted++
	}
	if !prune {
		return res, nil
	}
	stored, err := store.List(ctx)
	if err != nil {
		return res, err
	}
	for _, n := range stored {
		if _, ok := keep[n.ID]; ok {
			continue
		}
		err := store.Delete(ctx, n.ID)
		if err != nil && !errors.Is(err, apperrors.ErrNoteNotFound) {
			return res, fmt.Errorf("pruning note %s: %w", n.ID, err)
		}
		res.Deleted++
	}
	return res, nil
}

func sameContent(a, b Note) bool {
	return a.Title == b.Title && a.Content == b.Content && a.IsPinned == b.IsPinned && slices.Equal(a.Tags, b.Tags)
}

// DefaultWatchDelay is how long WatchFile waits for writes to settle.
const DefaultWatchDelay = 250 * time.Millisecond

// WatchFile calls onChange with the re-parsed notes each time the file at
// path is written or replaced, after writes have been quiet for delay.
// Parse errors are logged and the previous contents stay in effect. It
// returns when ctx is done.
func WatchFile(ctx context.Context, path string, delay time.Duration, onChange func(context.Context, []Note) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often replace the file instead of writing it, so watch the
	// directory and filter by name.
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}
	if delay <= 0 {
		delay = DefaultWatchDelay
	}
	log := slog.With("component", "notes-watch", "path", abs)

	timer := time.NewTimer(delay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(delay)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("watch error", "error", err)
		case <-timer.C:
			ns, err := LoadFile(abs)
			if err != nil {
				log.Warn("notes file unreadable, keeping previous contents", "error", err)
				continue
			}
			if err := onChange(ctx, ns); err != nil {
				log.Error("applying notes file failed", "error", err)
				continue
			}
			log.Info("notes file reloaded", "count", len(ns))
		}
	}
}
