package repo

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileLedger_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "processed_messages.json")
	ctx := context.Background()

	l := NewFileLedger(path, nil)
	if _, err := l.Load(ctx); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if err := l.Save(ctx, "1001", 42); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if err := l.Save(ctx, "2002", 7); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	reloaded, err := NewFileLedger(path, nil).Load(ctx)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(reloaded) != 2 || reloaded["1001"] != 42 || reloaded["2002"] != 7 {
		t.Fatalf("unexpected reloaded ledger: %v", reloaded)
	}
}

func TestFileLedger_LoadToleratesBadFiles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content *string
	}{
		{name: "missing file", content: nil},
		{name: "garbage", content: strPtr("{not json")},
		{name: "legacy list", content: strPtr("[1, 2, 3]")},
		{name: "null", content: strPtr("null")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "ledger.json")
			if tt.content != nil {
				if err := os.WriteFile(path, []byte(*tt.content), 0o644); err != nil {
					t.Fatalf("write fixture: %v", err)
				}
			}

			l := NewFileLedger(path, nil)
			got, err := l.Load(context.Background())
			if err != nil {
				t.Fatalf("Load() error: %v", err)
			}
			if len(got) != 0 {
				t.Fatalf("expected empty ledger, got %v", got)
			}

			if err := l.Save(context.Background(), "5", 1); err != nil {
				t.Fatalf("Save() after bad load error: %v", err)
			}
		})
	}
}

func TestFileLedger_SaveNeverRegresses(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ledger.json")
	ctx := context.Background()

	l := NewFileLedger(path, nil)
	if _, err := l.Load(ctx); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	for _, id := range []int64{10, 30, 20} {
		if err := l.Save(ctx, "9", id); err != nil {
			t.Fatalf("Save(%d) error: %v", id, err)
		}
	}

	got, err := NewFileLedger(path, nil).Load(ctx)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got["9"] != 30 {
		t.Fatalf("expected watermark 30, got %d", got["9"])
	}
}

func TestFileLedger_SaveErrorInMissingDir(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "no-such-dir", "ledger.json")
	l := NewFileLedger(path, nil)
	if _, err := l.Load(context.Background()); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if err := l.Save(context.Background(), "1", 1); err == nil {
		t.Fatalf("expected error writing into a missing directory")
	}
}

func strPtr(s string) *string { return &s }
