package store

import (
	"context"
	"errors"
	"testing"
)

// openTestStore opens an in-memory SQLiteStore for use in tests.
func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func Test_Store_PutAndGet(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	want := []float32{0.5, -0.25, 3}
	if err := s.Put(ctx, "k1", want); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := s.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatal("expected cache hit")
	}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func Test_Store_Miss(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	_, ok, err := s.Get(context.Background(), "absent")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Error("expected miss")
	}
}

func Test_Store_PutReplaces(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "k", []float32{1, 2}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(ctx, "k", []float32{3, 4, 5}); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, _, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 3 || got[0] != 3 {
		t.Errorf("got %v, want [3 4 5]", got)
	}
	n, err := s.Len(ctx)
	if err != nil {
		t.Fatalf("len: %v", err)
	}
	if n != 1 {
		t.Errorf("len = %d, want 1", n)
	}
}

func Test_Key_ModelSensitive(t *testing.T) {
	t.Parallel()
	if Key("a", "text") == Key("b", "text") {
		t.Error("keys for different models must differ")
	}
	if Key("a", "text") != Key("a", "text") {
		t.Error("key must be deterministic")
	}
}

type countingEmbedder struct {
	calls int
	texts []string
	err   error
}

func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.calls++
	c.texts = append(c.texts, texts...)
	if c.err != nil {
		return nil, c.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func Test_CachingEmbedder_HitsSkipEmbedder(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	inner := &countingEmbedder{}
	emb := NewCachingEmbedder(inner, s, "nomic-embed-text")
	ctx := context.Background()

	if _, err := emb.Embed(ctx, []string{"ab", "abc"}); err != nil {
		t.Fatalf("first embed: %v", err)
	}
	got, err := emb.Embed(ctx, []string{"abc", "abcd"})
	if err != nil {
		t.Fatalf("second embed: %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("inner calls = %d, want 2", inner.calls)
	}
	if len(inner.texts) != 3 || inner.texts[2] != "abcd" {
		t.Errorf("inner texts = %v, want only the miss on the second call", inner.texts)
	}
	if got[0][0] != 3 || got[1][0] != 4 {
		t.Errorf("got %v, want [[3] [4]]", got)
	}
}

func Test_CachingEmbedder_PropagatesError(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	boom := errors.New("boom")
	emb := NewCachingEmbedder(&countingEmbedder{err: boom}, s, "m")

	if _, err := emb.Embed(context.Background(), []string{"x"}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}
