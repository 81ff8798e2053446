package memory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/agentsea/turnengine/pkg/engine/api"
)

func TestInMemoryStoreAppendHistory(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	if err := s.Append(ctx, "conv1", api.Message{ID: "m1", Role: api.RoleUser, Content: api.TextContent("hi")}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Append(ctx, "conv1", api.Message{ID: "m2", Role: api.RoleAssistant, Content: api.TextContent("hello")}); err != nil {
		t.Fatalf("append: %v", err)
	}

	hist, err := s.History(ctx, "conv1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(hist))
	}

	hist[0].ID = "mutated"
	hist2, _ := s.History(ctx, "conv1")
	if hist2[0].ID == "mutated" {
		t.Fatalf("history must return a defensive copy")
	}
}

func TestInMemoryStoreReplace(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	s.Append(ctx, "conv1", api.Message{ID: "m1"})
	s.Append(ctx, "conv1", api.Message{ID: "m2"})

	if err := s.Replace(ctx, "conv1", []api.Message{{ID: "summary"}}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	hist, _ := s.History(ctx, "conv1")
	if len(hist) != 1 || hist[0].ID != "summary" {
		t.Fatalf("expected replaced history, got %+v", hist)
	}
}

func TestInMemoryStoreKeysDeleteClear(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	s.Append(ctx, "conv1", api.Message{ID: "m1"})
	s.Append(ctx, "conv2", api.Message{ID: "m2"})

	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %v", keys)
	}

	if err := s.Delete(ctx, "conv1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	hist, _ := s.History(ctx, "conv1")
	if len(hist) != 0 {
		t.Fatalf("expected conv1 deleted, got %+v", hist)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	keys, _ = s.Keys(ctx)
	if len(keys) != 0 {
		t.Fatalf("expected no keys after clear, got %v", keys)
	}
}

func TestInMemoryStoreSnapshotImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	s.Append(ctx, "conv1", api.Message{ID: "m1"})

	snap, err := s.Snapshot(ctx, "conv1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	dst := NewInMemoryStore()
	if err := dst.ImportSnapshot(ctx, snap); err != nil {
		t.Fatalf("import: %v", err)
	}
	hist, _ := dst.History(ctx, "conv1")
	if len(hist) != 1 || hist[0].ID != "m1" {
		t.Fatalf("expected imported history, got %+v", hist)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}

	if err := s.Append(ctx, "conv1", api.Message{ID: "m1", Role: api.RoleUser, Content: api.TextContent("hi")}); err != nil {
		t.Fatalf("append: %v", err)
	}

	s2, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	hist, err := s2.History(ctx, "conv1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 1 || hist[0].ID != "m1" {
		t.Fatalf("expected persisted message, got %+v", hist)
	}
}

func TestFileStoreWorkspaceEscape(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	escaping := filepath.Join("..", "..", "etc", "passwd")
	if err := s.Append(ctx, escaping, api.Message{ID: "m1"}); err != ErrWorkspaceEscape {
		t.Fatalf("expected ErrWorkspaceEscape, got %v", err)
	}
}

func TestFileStoreKeysDeleteClear(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	s.Append(ctx, "conv1", api.Message{ID: "m1"})
	s.Append(ctx, "conv2", api.Message{ID: "m2"})

	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %v", keys)
	}

	if err := s.Delete(ctx, "conv1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	hist, _ := s.History(ctx, "conv1")
	if len(hist) != 0 {
		t.Fatalf("expected conv1 deleted, got %+v", hist)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	keys, _ = s.Keys(ctx)
	if len(keys) != 0 {
		t.Fatalf("expected no keys after clear, got %v", keys)
	}
}

func TestFileStoreSnapshotImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	s.Append(ctx, "conv1", api.Message{ID: "m1"})

	snap, err := s.Snapshot(ctx, "conv1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	dstDir := t.TempDir()
	dst, err := NewFileStore(dstDir)
	if err != nil {
		t.Fatalf("new dst file store: %v", err)
	}
	if err := dst.ImportSnapshot(ctx, snap); err != nil {
		t.Fatalf("import: %v", err)
	}
	hist, _ := dst.History(ctx, "conv1")
	if len(hist) != 1 || hist[0].ID != "m1" {
		t.Fatalf("expected imported history, got %+v", hist)
	}
}
