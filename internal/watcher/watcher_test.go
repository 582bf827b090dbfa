package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestHashFile(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "test.txt")
	content := []byte("test content for hashing")

	if err := os.WriteFile(testFile, content, 0600); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	hash1, size1, err := HashFile(testFile)
	if err != nil {
		t.Fatalf("HashFile failed: %v", err)
	}
	if size1 != int64(len(content)) {
		t.Errorf("expected size %d, got %d", len(content), size1)
	}

	if err := os.WriteFile(testFile, []byte("different content"), 0600); err != nil {
		t.Fatalf("failed to modify test file: %v", err)
	}
	hash2, _, err := HashFile(testFile)
	if err != nil {
		t.Fatalf("second HashFile failed: %v", err)
	}
	if hash1 == hash2 {
		t.Error("different content should produce different hash")
	}
}

func TestHashFileNotFound(t *testing.T) {
	_, _, err := HashFile("/nonexistent/file.txt")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

const testDebounce = 50 * time.Millisecond

func startWatcher(t *testing.T, path string) *Watcher {
	t.Helper()
	w, err := New(path, testDebounce)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { w.Stop() })
	return w
}

func expectEvent(t *testing.T, w *Watcher) Event {
	t.Helper()
	select {
	case ev := <-w.Events():
		return ev
	case err := <-w.Errors():
		t.Fatalf("watcher error: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for change event")
	}
	return Event{}
}

func expectNoEvent(t *testing.T, w *Watcher) {
	t.Helper()
	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event for %s", ev.Path)
	case <-time.After(6 * testDebounce):
	}
}

func TestReportsWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	if err := os.WriteFile(path, []byte(`{"version":1}`), 0600); err != nil {
		t.Fatal(err)
	}
	w := startWatcher(t, path)

	if err := os.WriteFile(path, []byte(`{"version":2}`), 0600); err != nil {
		t.Fatal(err)
	}
	ev := expectEvent(t, w)
	if ev.Path != w.Path() {
		t.Errorf("event path = %s, want %s", ev.Path, w.Path())
	}
	if ev.Size != int64(len(`{"version":2}`)) {
		t.Errorf("event size = %d", ev.Size)
	}
}

func TestBurstIsDebounced(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	w := startWatcher(t, path)

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte{byte('a' + i)}, 0600); err != nil {
			t.Fatal(err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	ev := expectEvent(t, w)
	if ev.Size != 1 {
		t.Errorf("event size = %d", ev.Size)
	}
	expectNoEvent(t, w)
}

func TestUnchangedContentIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	if err := os.WriteFile(path, []byte("same"), 0600); err != nil {
		t.Fatal(err)
	}
	w := startWatcher(t, path)

	if err := os.WriteFile(path, []byte("same"), 0600); err != nil {
		t.Fatal(err)
	}
	expectNoEvent(t, w)
}

func TestAtomicReplaceReported(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")
	if err := os.WriteFile(path, []byte("old"), 0600); err != nil {
		t.Fatal(err)
	}
	w := startWatcher(t, path)

	tmp := filepath.Join(dir, ".data.json.tmp")
	if err := os.WriteFile(tmp, []byte("new"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}
	expectEvent(t, w)
}

func TestOtherFilesIgnored(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, filepath.Join(dir, "data.json"))

	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte("x = 1"), 0600); err != nil {
		t.Fatal(err)
	}
	expectNoEvent(t, w)
}

func TestStopClosesChannels(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "data.json"), 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	w.Stop()
	w.Stop()

	if _, ok := <-w.Events(); ok {
		t.Error("events channel should be closed")
	}
}
