package common_test

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"calsync_server/adapter/out/objectstore"
	"calsync_server/core/port/out"
	"calsync_server/core/service/common"
)

func TestResolveKey(t *testing.T) {
	tests := []struct {
		template string
		user     string
		want     string
	}{
		{"config/%USER%/info.json", "serverless", "config/serverless/info.json"},
		{"%USER%/%USER%.json", "bob", "bob/bob.json"},
		{"sync/processed_events.json", "bob", "sync/processed_events.json"},
		{"users/%USER%/", "", "users//"},
	}
	for _, tt := range tests {
		if got := common.ResolveKey(tt.template, tt.user); got != tt.want {
			t.Errorf("ResolveKey(%q, %q) = %q, want %q", tt.template, tt.user, got, tt.want)
		}
	}
}

func TestUserNames(t *testing.T) {
	got := common.UserNames([]string{"users/alice/", "users/bob", "users/"}, "users/")
	want := []string{"alice", "bob"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("UserNames = %v, want %v", got, want)
	}
}

func TestReadJSONMissingIsFallback(t *testing.T) {
	store := objectstore.NewMemoryStore()
	var list []string
	found, err := common.ReadJSON(context.Background(), store, "b", "missing.json", &list)
	if err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if found.Exists || list != nil {
		t.Errorf("found = %+v, list = %v", found, list)
	}
	if !found.Condition().IfAbsent {
		t.Error("missing document should write create-only")
	}
}

func TestReadJSONMalformed(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemoryStore()
	if _, err := store.Put(ctx, "b", "k", []byte(`{not json`), out.WriteCondition{}); err != nil {
		t.Fatal(err)
	}
	var v map[string]any
	found, err := common.ReadJSON(ctx, store, "b", "k", &v)
	if !errors.Is(err, common.ErrUndecodable) {
		t.Fatalf("err = %v, want ErrUndecodable", err)
	}
	if !found.Exists || found.Version == "" {
		t.Fatalf("found = %+v, want existing version", found)
	}
	if _, err := common.WriteJSON(ctx, store, "b", "k", map[string]any{"ok": true}, found); err != nil {
		t.Errorf("overwrite at read version: %v", err)
	}
}

func TestWriteJSONDetectsLostUpdate(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemoryStore()
	if _, err := common.PutJSON(ctx, store, "b", "k", []int{1}, out.WriteCondition{}); err != nil {
		t.Fatal(err)
	}

	var a, b []int
	foundA, _ := common.ReadJSON(ctx, store, "b", "k", &a)
	foundB, _ := common.ReadJSON(ctx, store, "b", "k", &b)

	if _, err := common.WriteJSON(ctx, store, "b", "k", append(a, 2), foundA); err != nil {
		t.Fatalf("first writer: %v", err)
	}
	if _, err := common.WriteJSON(ctx, store, "b", "k", append(b, 3), foundB); !errors.Is(err, out.ErrVersionConflict) {
		t.Fatalf("second writer: err = %v, want conflict", err)
	}
}

func TestUpdateJSONConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemoryStore()

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := common.UpdateJSON(ctx, store, "b", "k", 50, func(cur []int, _ bool) ([]int, error) {
				return append(cur, n), nil
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("UpdateJSON: %v", err)
		}
	}

	var got []int
	if _, err := common.ReadJSON(ctx, store, "b", "k", &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != writers {
		t.Errorf("len = %d, want %d (lost update)", len(got), writers)
	}
}

func TestUpdateJSONMutateError(t *testing.T) {
	store := objectstore.NewMemoryStore()
	boom := errors.New("boom")
	_, err := common.UpdateJSON(context.Background(), store, "b", "k", 0, func(cur []int, _ bool) ([]int, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if ok, _ := store.Exists(context.Background(), "b", "k"); ok {
		t.Error("document written despite mutate error")
	}
}
