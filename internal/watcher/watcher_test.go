package watcher

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Vovarama1992/dubflow/internal/ports"
)

type stubJobs struct {
	mu    sync.Mutex
	names []string
}

func (s *stubJobs) Submit(ctx context.Context, req ports.SubmitRequest) (*ports.Job, error) {
	s.mu.Lock()
	s.names = append(s.names, req.Filename)
	s.mu.Unlock()
	return &ports.Job{ID: "job-" + req.Filename, State: ports.JobPending}, nil
}

func (s *stubJobs) submitted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]string(nil), s.names...)
	sort.Strings(out)
	return out
}

func (s *stubJobs) Get(ctx context.Context, id string) (*ports.Job, error) {
	return nil, ports.ErrNotFound
}
func (s *stubJobs) List(ctx context.Context, limit int) ([]ports.Job, error) { return nil, nil }
func (s *stubJobs) Retry(ctx context.Context, id string) (*ports.Job, error) {
	return nil, ports.ErrNotFound
}
func (s *stubJobs) ArtifactURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return "", nil
}
func (s *stubJobs) OpenArtifact(ctx context.Context, key string) (io.ReadCloser, error) {
	return nil, ports.ErrNotFound
}

func startWatcher(t *testing.T, jobs ports.JobService) (inbox string) {
	t.Helper()
	inbox = t.TempDir()
	w, err := New(inbox, t.TempDir(), jobs)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { w.Stop() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go w.Start(ctx)
	return inbox
}

func waitForCount(t *testing.T, jobs *stubJobs, want int, deadline time.Duration) {
	t.Helper()
	timeout := time.After(deadline)
	for {
		if len(jobs.submitted()) >= want {
			return
		}
		select {
		case <-timeout:
			t.Fatalf("submitted %v, want %d files within %s", jobs.submitted(), want, deadline)
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestBurstOfFilesSettlesInParallel(t *testing.T) {
	jobs := &stubJobs{}
	inbox := startWatcher(t, jobs)

	// let fsnotify pick up the directory before the burst
	time.Sleep(100 * time.Millisecond)

	for _, name := range []string{"a.mp4", "b.mp4", "c.mp4", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(inbox, name), []byte("video"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	// each file settles on its own timer; settling them one after another
	// would need three full delays and miss this deadline
	waitForCount(t, jobs, 3, settleDelay+3*time.Second)

	got := jobs.submitted()
	if len(got) != 3 || got[0] != "a.mp4" || got[1] != "b.mp4" || got[2] != "c.mp4" {
		t.Errorf("submitted %v, want the three videos and not the text file", got)
	}
}

func TestPreexistingFilesAreSubmitted(t *testing.T) {
	jobs := &stubJobs{}
	inbox := t.TempDir()
	if err := os.WriteFile(filepath.Join(inbox, "old.mp4"), []byte("video"), 0644); err != nil {
		t.Fatal(err)
	}

	w, err := New(inbox, t.TempDir(), jobs)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { w.Stop() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go w.Start(ctx)

	// already-settled files skip the delay
	waitForCount(t, jobs, 1, 2*time.Second)
}

func TestSubmittedFilesAreArchived(t *testing.T) {
	jobs := &stubJobs{}
	inbox := t.TempDir()
	archive := t.TempDir()
	if err := os.WriteFile(filepath.Join(inbox, "clip.mp4"), []byte("video"), 0644); err != nil {
		t.Fatal(err)
	}

	w, err := New(inbox, archive, jobs)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { w.Stop() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go w.Start(ctx)

	waitForCount(t, jobs, 1, 2*time.Second)

	timeout := time.After(time.Second)
	for {
		if _, err := os.Stat(filepath.Join(archive, "clip.mp4")); err == nil {
			break
		}
		select {
		case <-timeout:
			t.Fatal("file not moved to archive")
		case <-time.After(20 * time.Millisecond):
		}
	}
	if _, err := os.Stat(filepath.Join(inbox, "clip.mp4")); !os.IsNotExist(err) {
		t.Error("file still in inbox")
	}
}
