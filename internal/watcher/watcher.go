package watcher

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Vovarama1992/dubflow/internal/ports"
)

// settleDelay gives the writer time to finish the file before we read it.
const settleDelay = 2 * time.Second

var videoExtensions = map[string]struct{}{
	".mp4": {}, ".mov": {}, ".mkv": {}, ".webm": {}, ".m4v": {},
}

// Watcher submits videos dropped into an inbox directory as dubbing jobs
// and moves them to an archive directory once accepted.
type Watcher struct {
	inboxDir   string
	archiveDir string
	jobs       ports.JobService
	fw         *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]struct{}
	wg      sync.WaitGroup
}

func New(inboxDir, archiveDir string, jobs ports.JobService) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(inboxDir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", inboxDir, err)
	}
	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		fw.Close()
		return nil, err
	}

	return &Watcher{
		inboxDir:   inboxDir,
		archiveDir: archiveDir,
		jobs:       jobs,
		fw:         fw,
		pending:    make(map[string]struct{}),
	}, nil
}

// Start blocks until ctx is cancelled. Files already sitting in the inbox
// at startup are picked up too, so nothing dropped during downtime is lost.
func (w *Watcher) Start(ctx context.Context) error {
	log.Printf("[watcher] monitoring %s", w.inboxDir)

	entries, err := os.ReadDir(w.inboxDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() {
			w.submit(ctx, filepath.Join(w.inboxDir, e.Name()))
		}
	}

	for {
		select {
		case <-ctx.Done():
			w.wg.Wait()
			return ctx.Err()

		case event, ok := <-w.fw.Events:
			if !ok {
				w.wg.Wait()
				return fmt.Errorf("watcher events channel closed")
			}
			if event.Op&fsnotify.Create == fsnotify.Create {
				w.settleAndSubmit(ctx, event.Name)
			}

		case err, ok := <-w.fw.Errors:
			if !ok {
				w.wg.Wait()
				return fmt.Errorf("watcher errors channel closed")
			}
			log.Printf("[watcher] error: %v", err)
		}
	}
}

// settleAndSubmit waits out the settle delay off the event loop, so a
// burst of dropped files settles in parallel instead of backing up the
// events channel. Duplicate events for a file still being settled are
// dropped.
func (w *Watcher) settleAndSubmit(ctx context.Context, path string) {
	if !isVideoFile(path) {
		return
	}

	w.mu.Lock()
	if _, busy := w.pending[path]; busy {
		w.mu.Unlock()
		return
	}
	w.pending[path] = struct{}{}
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() {
			w.mu.Lock()
			delete(w.pending, path)
			w.mu.Unlock()
		}()

		select {
		case <-time.After(settleDelay):
		case <-ctx.Done():
			return
		}
		w.submit(ctx, path)
	}()
}

func (w *Watcher) Stop() error {
	return w.fw.Close()
}

func (w *Watcher) submit(ctx context.Context, path string) {
	if !isVideoFile(path) {
		return
	}

	f, err := os.Open(path)
	if err != nil {
		log.Printf("[watcher] open %s: %v", path, err)
		return
	}

	job, err := w.jobs.Submit(ctx, ports.SubmitRequest{
		Filename: filepath.Base(path),
		Source:   f,
	})
	f.Close()
	if err != nil {
		log.Printf("[watcher] submit %s: %v", path, err)
		return
	}

	log.Printf("[watcher] queued job %s for %s", job.ID, path)

	dest := filepath.Join(w.archiveDir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		log.Printf("[watcher] archive %s: %v", path, err)
	}
}

func isVideoFile(path string) bool {
	_, ok := videoExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}
