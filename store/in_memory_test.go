package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/hupe1980/agentdock/core"
)

// Interface compliance (compile-time assertions)
var _ core.SessionStore = (*InMemoryStore)(nil)

func TestInMemoryStore_InsertGetIsolation(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	sess := core.NewSession("task", core.BackendTerminal)
	sess.Output = []string{"a"}
	if err := s.Insert(ctx, sess); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// mutate the original after insert
	sess.Output[0] = "mutated"
	sess.Status = core.StatusError

	got, err := s.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Output[0] != "a" || got.Status != core.StatusRunning {
		t.Fatalf("expected stored row isolated from caller mutation, got %+v", got)
	}

	// mutate the returned row
	got.Output[0] = "x"
	got2, _ := s.Get(ctx, sess.ID)
	if got2.Output[0] != "a" {
		t.Fatalf("expected isolation on read, got %q", got2.Output[0])
	}
}

func TestInMemoryStore_GetUnknown(t *testing.T) {
	s := NewInMemoryStore()
	if _, err := s.Get(context.Background(), "nope"); err != core.ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestInMemoryStore_PartialUpdate(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	sess := core.NewSession("task", core.BackendOpenAI)
	sess.Model = "gpt-test"
	if err := s.Insert(ctx, sess); err != nil {
		t.Fatal(err)
	}

	status := core.StatusError
	errMsg := "boom"
	if err := s.Update(ctx, sess.ID, core.SessionUpdate{Status: &status, Error: &errMsg}); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, _ := s.Get(ctx, sess.ID)
	if got.Status != core.StatusError || got.Error != "boom" {
		t.Fatalf("update not applied: %+v", got)
	}
	if got.Model != "gpt-test" {
		t.Fatalf("nil field must stay untouched, got %q", got.Model)
	}
	if !got.Updated.After(sess.Updated) {
		t.Fatal("expected Updated to advance")
	}

	if err := s.Update(ctx, "nope", core.SessionUpdate{Status: &status}); err != core.ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestInMemoryStore_AppendOutput(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	sess := core.NewSession("task", core.BackendOpenAI)
	if err := s.Insert(ctx, sess); err != nil {
		t.Fatal(err)
	}

	for _, chunk := range []string{"one", "two", "three"} {
		if err := s.AppendOutput(ctx, sess.ID, chunk); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, _ := s.Get(ctx, sess.ID)
	if len(got.Output) != 3 || got.Output[2] != "three" {
		t.Fatalf("unexpected output: %v", got.Output)
	}

	if err := s.AppendOutput(ctx, "nope", "x"); err != core.ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestInMemoryStore_Concurrency(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	sess := core.NewSession("task", core.BackendOpenAI)
	if err := s.Insert(ctx, sess); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.AppendOutput(ctx, sess.ID, fmt.Sprintf("chunk-%d", i)); err != nil {
				t.Errorf("append err: %v", err)
			}
			_, _ = s.Get(ctx, sess.ID)
		}()
	}
	wg.Wait()

	got, _ := s.Get(ctx, sess.ID)
	if len(got.Output) != 100 {
		t.Fatalf("expected 100 chunks, got %d", len(got.Output))
	}
}
