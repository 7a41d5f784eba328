package session

import (
	"testing"
	"time"
)

func TestStore_Add(t *testing.T) {
	store := NewStore()

	ids := make(map[string]bool)
	for i := 0; i < 100; i++ {
		info, count := store.Add(Info{Remote: "127.0.0.1:5000", Transport: "tcp"})
		if ids[info.ID] {
			t.Errorf("Duplicate session ID: %s", info.ID)
		}
		ids[info.ID] = true

		// uuid string form
		if len(info.ID) != 36 {
			t.Errorf("Session ID length = %d, want 36", len(info.ID))
		}
		if info.StartedAt.IsZero() {
			t.Error("StartedAt should be filled in")
		}
		if count != i+1 {
			t.Errorf("count = %d, want %d", count, i+1)
		}
	}
	if store.Count() != 100 {
		t.Errorf("Count = %d, want 100", store.Count())
	}
}

func TestStore_KeepsGivenID(t *testing.T) {
	store := NewStore()
	info, _ := store.Add(Info{ID: "fixed"})
	if info.ID != "fixed" {
		t.Fatalf("ID = %s, want fixed", info.ID)
	}
	list := store.List()
	if len(list) != 1 || list[0].ID != "fixed" {
		t.Fatalf("List() = %+v, want the fixed session", list)
	}
}

func TestStore_Remove(t *testing.T) {
	store := NewStore()
	info, _ := store.Add(Info{})

	store.Remove(info.ID)
	if list := store.List(); len(list) != 0 {
		t.Fatalf("session should be removed, still have %+v", list)
	}
	if store.Count() != 0 {
		t.Fatalf("Count = %d, want 0", store.Count())
	}

	// Unknown IDs are ignored.
	store.Remove("missing")
}

func TestStore_ListOldestFirst(t *testing.T) {
	store := NewStore()
	base := time.Now()
	store.Add(Info{ID: "c", StartedAt: base.Add(2 * time.Second)})
	store.Add(Info{ID: "a", StartedAt: base})
	store.Add(Info{ID: "b", StartedAt: base.Add(time.Second)})

	list := store.List()
	if len(list) != 3 {
		t.Fatalf("List length = %d, want 3", len(list))
	}
	for i, want := range []string{"a", "b", "c"} {
		if list[i].ID != want {
			t.Errorf("List[%d] = %s, want %s", i, list[i].ID, want)
		}
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	store := NewStore()
	done := make(chan bool)

	for g := 0; g < 2; g++ {
		go func() {
			for i := 0; i < 50; i++ {
				info, _ := store.Add(Info{})
				store.Remove(info.ID)
			}
			done <- true
		}()
	}
	go func() {
		for i := 0; i < 50; i++ {
			store.List()
			store.Count()
		}
		done <- true
	}()

	for i := 0; i < 3; i++ {
		<-done
	}
	if store.Count() != 0 {
		t.Errorf("Count = %d, want 0", store.Count())
	}
}
