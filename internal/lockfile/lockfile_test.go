package lockfile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAcquireLockWritesOwner(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")

	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	defer lock.Release()

	if lock.Path() != filepath.Join(dir, LockFileName) {
		t.Errorf("Path = %s", lock.Path())
	}
	owner := ReadOwner(lock.Path())
	if owner.PID != os.Getpid() || !owner.Running || owner.Started.IsZero() {
		t.Errorf("owner = %+v", owner)
	}
}

func TestAcquireLockConflict(t *testing.T) {
	dir := t.TempDir()

	first, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("first AcquireLock: %v", err)
	}
	defer first.Release()

	second, err := AcquireLock(dir)
	if err == nil {
		second.Release()
		t.Fatal("second AcquireLock should fail")
	}
	if !errors.Is(err, ErrLocked) {
		t.Errorf("error %v does not wrap ErrLocked", err)
	}
	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("expected *LockError, got %T", err)
	}
	if lockErr.Owner.PID != os.Getpid() {
		t.Errorf("owner = %+v", lockErr.Owner)
	}
	if !strings.Contains(err.Error(), dir) {
		t.Errorf("error should name the lock path: %s", err)
	}

	// The failed attempt must not clobber the owner's record.
	if owner := ReadOwner(first.Path()); owner.PID != os.Getpid() {
		t.Errorf("owner record lost: %+v", owner)
	}
}

func TestReleaseAllowsReacquire(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, LockFileName)); !os.IsNotExist(err) {
		t.Errorf("lock file still present: %v", err)
	}

	again, err := AcquireLock(dir)
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	again.Release()
}

func TestReadOwner(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		pid     int
	}{
		{"full record", "pid=4242\nstarted=2024-05-01T10:00:00Z\n", 4242},
		{"pid only", "pid=17", 17},
		{"garbage", "hello", 0},
		{"negative pid", "pid=-3", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_"))
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			if got := ReadOwner(path); got.PID != tt.pid {
				t.Errorf("PID = %d, want %d", got.PID, tt.pid)
			}
		})
	}
	if got := ReadOwner(filepath.Join(dir, "missing")); got.PID != 0 || got.String() != "unknown owner" {
		t.Errorf("missing file owner = %+v", got)
	}
}
