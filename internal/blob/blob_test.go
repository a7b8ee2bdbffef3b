package blob

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	data := []byte("Predictors of Response to Cannabis Formulations")
	ref, err := s.Put(ctx, data)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(ctx, ref)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Get = %q, want %q", got, data)
	}
}

func TestPutIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	data := []byte("abstract text")
	ref1, err := s.Put(ctx, data)
	if err != nil {
		t.Fatalf("first Put: %v", err)
	}
	ref2, err := s.Put(ctx, data)
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if ref1 != ref2 {
		t.Errorf("refs differ for identical content: %q vs %q", ref1, ref2)
	}
}

func TestDistinctContentDistinctRefs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ref1, err := s.Put(ctx, []byte("one"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	ref2, err := s.Put(ctx, []byte("two"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ref1 == ref2 {
		t.Error("distinct content produced the same ref")
	}
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), Ref([]byte("never stored")))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get error = %v, want ErrNotFound", err)
	}
}

func TestGetMalformedRef(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Get(context.Background(), "not-a-ref"); err == nil {
		t.Error("expected error for malformed ref")
	}
}
