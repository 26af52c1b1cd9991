package dataset

import (
	"fmt"
	"sync"
	"testing"

	"github.com/aaqwq/groupscope/internal/membership"
)

func testIndex(t *testing.T, owner string) *membership.Index {
	t.Helper()
	idx, _ := membership.Build([]membership.Record{
		{GroupID: "g-" + owner, MemberID: "m1"},
		{GroupID: "g-" + owner, MemberID: "m2"},
	})
	return idx
}

// TestStoreLifecycle exercises put, get, replace, and delete.
func TestStoreLifecycle(t *testing.T) {
	s := NewStore()
	if _, ok := s.Get("alice"); ok {
		t.Fatal("empty store returned a dataset")
	}

	first := testIndex(t, "alice")
	s.Put("alice", first)
	got, ok := s.Get("alice")
	if !ok || got != first {
		t.Fatal("Get did not return the installed index")
	}

	second := testIndex(t, "alice")
	s.Put("alice", second)
	if got, _ := s.Get("alice"); got != second {
		t.Fatal("Put did not replace the index")
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d after replace, want 1", s.Len())
	}

	if !s.Delete("alice") {
		t.Fatal("Delete reported no dataset")
	}
	if s.Delete("alice") {
		t.Fatal("second Delete reported a dataset")
	}
}

// TestStoreList verifies the summary content and owner ordering.
func TestStoreList(t *testing.T) {
	s := NewStore()
	s.Put("bob", testIndex(t, "bob"))
	s.Put("alice", testIndex(t, "alice"))

	infos := s.List()
	if len(infos) != 2 {
		t.Fatalf("List returned %d entries", len(infos))
	}
	if infos[0].Owner != "alice" || infos[1].Owner != "bob" {
		t.Errorf("owners out of order: %v", infos)
	}
	if infos[0].Groups != 1 || infos[0].Members != 2 || infos[0].Edges != 2 {
		t.Errorf("summary = %+v", infos[0])
	}
}

// TestStoreConcurrent hammers the store from many goroutines to surface
// races under -race.
func TestStoreConcurrent(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			owner := fmt.Sprintf("owner-%d", i%5)
			s.Put(owner, testIndex(t, owner))
			s.Get(owner)
			s.List()
			s.Len()
		}(i)
	}
	wg.Wait()
	if s.Len() != 5 {
		t.Errorf("Len = %d, want 5", s.Len())
	}
}
