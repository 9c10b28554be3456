// Package storetest is a conformance suite every stores.Store backend runs.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/RobertWHurst/docstream"
	"github.com/RobertWHurst/docstream/stores"
)

// StoreFactory creates a new, empty Store for one test.
type StoreFactory func(t *testing.T) stores.Store

// RunStoreTests runs the complete Store test suite against the provided factory.
func RunStoreTests(t *testing.T, factory StoreFactory) {
	t.Run("PutGet_RoundTrip", func(t *testing.T) { testRoundTrip(t, factory) })
	t.Run("Get_Missing", func(t *testing.T) { testGetMissing(t, factory) })
	t.Run("Put_Overwrites", func(t *testing.T) { testOverwrite(t, factory) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, factory) })
	t.Run("Delete_Missing", func(t *testing.T) { testDeleteMissing(t, factory) })
	t.Run("TTL_Expires", func(t *testing.T) { testTTL(t, factory) })
	t.Run("EmptyKey", func(t *testing.T) { testEmptyKey(t, factory) })
	t.Run("CanceledContext", func(t *testing.T) { testCanceledContext(t, factory) })
	t.Run("ConcurrentPuts", func(t *testing.T) { testConcurrentPuts(t, factory) })
}

// SampleDocument covers every Kind, nesting and a non-alphabetical field
// order.
func SampleDocument(t testing.TB) docstream.Document {
	t.Helper()
	doc, err := docstream.NewEncoder().
		Append("z").Value(int32(1)).
		Append("a").Value(int64(1) << 40).
		Append("d").Value(2.0).
		Append("s").Value("text").
		Append("ok").Value(true).
		Append("xs").Value([]float64{1.1, -2.9}).
		Append("test").Value(map[string]float64{"a": 2.01, "b": 3.1}).
		Finalize()
	if err != nil {
		t.Fatalf("Finalize() failed: %v", err)
	}
	return doc
}

func keyFor(t *testing.T, suffix string) string {
	return fmt.Sprintf("storetest:%s:%s:%d", t.Name(), suffix, time.Now().UnixNano())
}

func testRoundTrip(t *testing.T, factory StoreFactory) {
	s := factory(t)
	ctx := context.Background()
	key := keyFor(t, "doc")
	original := SampleDocument(t)

	if err := s.Put(ctx, key, original, 0); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	got, ok, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if !ok {
		t.Fatal("Expected document to be found")
	}
	if !got.Equal(original) {
		t.Errorf("Expected %v, got %v", original, got)
	}
}

func testGetMissing(t *testing.T, factory StoreFactory) {
	s := factory(t)

	_, ok, err := s.Get(context.Background(), keyFor(t, "absent"))
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if ok {
		t.Error("Expected missing key to report not found")
	}
}

func testOverwrite(t *testing.T, factory StoreFactory) {
	s := factory(t)
	ctx := context.Background()
	key := keyFor(t, "doc")

	first, _ := docstream.NewEncoder().Append("v").Value(int32(1)).Finalize()
	second, _ := docstream.NewEncoder().Append("v").Value(int32(2)).Finalize()

	if err := s.Put(ctx, key, first, 0); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if err := s.Put(ctx, key, second, 0); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	got, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Get() failed: ok=%v err=%v", ok, err)
	}
	if !got.Equal(second) {
		t.Errorf("Expected %v, got %v", second, got)
	}
}

func testDelete(t *testing.T, factory StoreFactory) {
	s := factory(t)
	ctx := context.Background()
	key := keyFor(t, "doc")

	if err := s.Put(ctx, key, SampleDocument(t), 0); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}

	if _, ok, err := s.Get(ctx, key); err != nil || ok {
		t.Errorf("Expected deleted key to be gone, ok=%v err=%v", ok, err)
	}
}

func testDeleteMissing(t *testing.T, factory StoreFactory) {
	s := factory(t)

	if err := s.Delete(context.Background(), keyFor(t, "absent")); err != nil {
		t.Errorf("Expected no error deleting a missing key, got %v", err)
	}
}

func testTTL(t *testing.T, factory StoreFactory) {
	s := factory(t)
	ctx := context.Background()
	key := keyFor(t, "doc")

	if err := s.Put(ctx, key, SampleDocument(t), 100*time.Millisecond); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if _, ok, _ := s.Get(ctx, key); !ok {
		t.Fatal("Expected document before expiry")
	}

	time.Sleep(300 * time.Millisecond)

	if _, ok, err := s.Get(ctx, key); err != nil || ok {
		t.Errorf("Expected document to expire, ok=%v err=%v", ok, err)
	}
}

func testEmptyKey(t *testing.T, factory StoreFactory) {
	s := factory(t)

	if err := s.Put(context.Background(), "", SampleDocument(t), 0); err == nil {
		t.Error("Expected error for empty key")
	}
}

func testCanceledContext(t *testing.T, factory StoreFactory) {
	s := factory(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Put(ctx, keyFor(t, "doc"), SampleDocument(t), 0)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func testConcurrentPuts(t *testing.T, factory StoreFactory) {
	s := factory(t)
	ctx := context.Background()
	prefix := keyFor(t, "doc")

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			doc, _ := docstream.NewEncoder().Append("i").Value(int32(i)).Finalize()
			if err := s.Put(ctx, fmt.Sprintf("%s:%d", prefix, i), doc, 0); err != nil {
				t.Errorf("Put() failed: %v", err)
			}
		}()
	}
	wg.Wait()

	for i := range 10 {
		got, ok, err := s.Get(ctx, fmt.Sprintf("%s:%d", prefix, i))
		if err != nil || !ok {
			t.Fatalf("Get(%d) failed: ok=%v err=%v", i, ok, err)
		}
		var n int32
		if err := docstream.Decode(got.Lookup("i"), &n); err != nil || n != int32(i) {
			t.Errorf("Expected %d, got %d (%v)", i, n, err)
		}
	}
}
