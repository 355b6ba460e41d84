package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/tutorlink/tutorlink/internal/identity"
)

func TestInMemoryCreateAssignsCodeAndRoom(t *testing.T) {
	store := NewInMemoryStore(8)
	s, err := store.Create(context.Background(), 7, CreateRequest{Subject: "Maths", Level: "Terminale"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if len(s.JoinCode) != 8 || strings.ToUpper(s.JoinCode) != s.JoinCode {
		t.Fatalf("JoinCode = %q, want 8 uppercase chars", s.JoinCode)
	}
	if !strings.HasPrefix(s.RoomName, "room-") {
		t.Fatalf("RoomName = %q", s.RoomName)
	}
	if s.LearnerID != nil {
		t.Fatalf("LearnerID = %v, want unbound", *s.LearnerID)
	}

	byRoom, err := store.GetByRoom(context.Background(), s.RoomName)
	if err != nil || byRoom.ID != s.ID {
		t.Fatalf("GetByRoom() = %+v, %v", byRoom, err)
	}
}

func TestInMemoryJoinIsSingleUse(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore(8)
	s, _ := store.Create(ctx, 7, CreateRequest{})

	joined, err := store.Join(ctx, 42, strings.ToLower(s.JoinCode))
	if err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if !joined.HasLearner(42) {
		t.Fatalf("learner not bound: %+v", joined)
	}
	if _, err := store.Join(ctx, 43, s.JoinCode); !errors.Is(err, ErrInvalidJoinCode) {
		t.Fatalf("second Join() error = %v, want ErrInvalidJoinCode", err)
	}
	if _, err := store.Join(ctx, 43, "NOPE0000"); !errors.Is(err, ErrInvalidJoinCode) {
		t.Fatalf("unknown code Join() error = %v, want ErrInvalidJoinCode", err)
	}
}

func TestInMemoryConcurrentJoinBindsOneLearner(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore(8)
	s, _ := store.Create(ctx, 7, CreateRequest{})

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := int64(1); i <= 16; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if _, err := store.Join(ctx, id, s.JoinCode); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("successful joins = %d, want 1", wins)
	}
}

func TestInMemoryReadsAreCopies(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore(8)
	s, _ := store.Create(ctx, 7, CreateRequest{})
	joined, _ := store.Join(ctx, 42, s.JoinCode)
	*joined.LearnerID = 99

	got, err := store.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if *got.LearnerID != 42 {
		t.Fatalf("stored LearnerID = %d, want 42", *got.LearnerID)
	}
}

func TestInMemoryListsPerParty(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore(8)
	a, _ := store.Create(ctx, 7, CreateRequest{Subject: "a"})
	_, _ = store.Create(ctx, 7, CreateRequest{Subject: "b"})
	_, _ = store.Create(ctx, 8, CreateRequest{Subject: "c"})
	_, _ = store.Join(ctx, 42, a.JoinCode)

	tutor, _ := store.ListForTutor(ctx, 7)
	if len(tutor) != 2 {
		t.Fatalf("ListForTutor() len = %d, want 2", len(tutor))
	}
	learner, _ := store.ListForLearner(ctx, 42)
	if len(learner) != 1 || learner[0].ID != a.ID {
		t.Fatalf("ListForLearner() = %+v", learner)
	}
}

func TestInMemoryDeleteRequiresParty(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore(8)
	s, _ := store.Create(ctx, 7, CreateRequest{})
	_, _ = store.Join(ctx, 42, s.JoinCode)

	if _, err := store.Delete(ctx, s.ID, identity.RoleTutor, 8); !errors.Is(err, ErrForbidden) {
		t.Fatalf("Delete() by stranger error = %v, want ErrForbidden", err)
	}
	if _, err := store.Delete(ctx, s.ID, identity.RoleLearner, 42); err != nil {
		t.Fatalf("Delete() by learner error = %v", err)
	}
	if _, err := store.GetByRoom(ctx, s.RoomName); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetByRoom() after delete error = %v, want ErrNotFound", err)
	}
}

func TestNewStoreWithoutDatabaseIsInMemory(t *testing.T) {
	store, err := NewStore(context.Background(), "  ", 8)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	defer store.Close()
	if _, ok := store.(*InMemoryStore); !ok {
		t.Fatalf("NewStore() = %T, want *InMemoryStore", store)
	}
}

func TestLearnerMatchIsExact(t *testing.T) {
	id := int64(42)
	bound := Session{TutorID: 7, LearnerID: &id}
	if !bound.Bound() || !bound.HasLearner(42) {
		t.Fatalf("bound session = %+v, want learner 42", bound)
	}
	if bound.HasLearner(0) || bound.IsParty(identity.RoleLearner, 0) {
		t.Fatalf("zero id matched the bound learner")
	}
	if (Session{TutorID: 7}).Bound() {
		t.Fatalf("Bound() = true without a learner")
	}
}
