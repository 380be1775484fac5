package wal

import (
	"path/filepath"
	"testing"
)

func TestAppendAssignsSequentialIndexes(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "wal"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer l.Close()

	for want := uint64(1); want <= 5; want++ {
		index, err := l.Append(1, []byte("entry"))
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		if index != want {
			t.Fatalf("index = %d, want %d", index, want)
		}
	}
	if l.LastIndex() != 5 {
		t.Fatalf("last index = %d, want 5", l.LastIndex())
	}
}

func TestReopenResumesLastIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal")

	l, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := l.Append(1, []byte("entry")); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	l.Close()

	l, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer l.Close()

	if l.LastIndex() != 3 {
		t.Fatalf("last index after reopen = %d, want 3", l.LastIndex())
	}
	if index, err := l.Append(1, []byte("entry")); err != nil || index != 4 {
		t.Fatalf("append after reopen = %d, %v; want 4", index, err)
	}
}

func TestAppendAfterClose(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "wal"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	l.Close()

	if _, err := l.Append(1, nil); err != ErrClosed {
		t.Fatalf("append after close returned %v", err)
	}
}
