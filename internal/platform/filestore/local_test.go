package filestore

import (
	"context"
	"testing"
)

func TestLocalRoundTrip(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	ctx := context.Background()

	if err := store.Write(ctx, "projects/p1/text_versions/plain.txt", []byte("Hello world.")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := store.Read(ctx, "projects/p1/text_versions/plain.txt")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "Hello world." {
		t.Fatalf("unexpected content %q", got)
	}

	ok, err := store.Exists(ctx, "projects/p1/text_versions/plain.txt")
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}
	ok, err = store.Exists(ctx, "projects/p1/missing.txt")
	if err != nil || ok {
		t.Fatalf("Exists(missing) = %v, %v", ok, err)
	}
}

func TestLocalCopyAndList(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	ctx := context.Background()

	if err := store.Write(ctx, "a/src.txt", []byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := store.Copy(ctx, "a/src.txt", "b/dst.txt"); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	got, err := store.Read(ctx, "b/dst.txt")
	if err != nil || string(got) != "x" {
		t.Fatalf("Read copy = %q, %v", got, err)
	}

	keys, err := store.List(ctx, "a")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 1 || keys[0] != "a/src.txt" {
		t.Fatalf("List = %v", keys)
	}

	if err := store.RemoveAll(ctx, "a"); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	keys, err = store.List(ctx, "a")
	if err != nil || len(keys) != 0 {
		t.Fatalf("List after RemoveAll = %v, %v", keys, err)
	}
}

func TestLocalModTimeOrdering(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	ctx := context.Background()

	if err := store.Write(ctx, "first.txt", []byte("1")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := store.Write(ctx, "second.txt", []byte("2")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	t1, err := store.ModTime(ctx, "first.txt")
	if err != nil {
		t.Fatalf("ModTime: %v", err)
	}
	t2, err := store.ModTime(ctx, "second.txt")
	if err != nil {
		t.Fatalf("ModTime: %v", err)
	}
	if t2.Before(t1) {
		t.Fatalf("second written file has earlier mtime: %v < %v", t2, t1)
	}
}
