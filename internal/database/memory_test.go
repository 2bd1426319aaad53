package database

import (
	"cloudjobs/internal/apperrors"
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

func testDescriptor() Descriptor {
	return Descriptor{
		Name:     "free-db",
		Host:     "redis-1.example",
		Port:     12000,
		Password: "pw",
		Provider: ProviderRedisCloud,
		Cloud:    CloudDetails{SubscriptionID: 1, DatabaseID: 2, Free: true},
	}
}

func TestMemoryRepository_CreateAndGet(t *testing.T) {
	t.Parallel()
	repo := NewMemoryRepository()
	ctx := context.Background()

	db, err := repo.Create(ctx, testDescriptor())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if db.ID == "" || db.CreatedAt.IsZero() {
		t.Errorf("Expected id and timestamp, got %+v", db)
	}

	got, err := repo.Get(ctx, db.ID)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got.Cloud.DatabaseID != 2 || got.Addr() != "redis-1.example:12000" {
		t.Errorf("Unexpected handle %+v", got)
	}

	// Returned handles are copies.
	got.Name = "changed"
	again, _ := repo.Get(ctx, db.ID)
	if again.Name != "free-db" {
		t.Error("Expected stored handle to be unaffected by caller mutation")
	}
}

func TestMemoryRepository_GetMissing(t *testing.T) {
	t.Parallel()
	_, err := NewMemoryRepository().Get(context.Background(), "nope")
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRepository_RejectsInvalidDescriptor(t *testing.T) {
	t.Parallel()
	repo := NewMemoryRepository()

	d := testDescriptor()
	d.Port = 0
	if _, err := repo.Create(context.Background(), d); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("Expected ErrValidation, got %v", err)
	}
	if len(repo.List()) != 0 {
		t.Error("Expected nothing stored")
	}
}

func TestMemoryRepository_ConcurrentCreate(t *testing.T) {
	t.Parallel()
	repo := NewMemoryRepository()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Create(context.Background(), testDescriptor()); err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := len(repo.List()); n != 20 {
		t.Errorf("Expected 20 handles, got %d", n)
	}
}

func TestRedisVerifier_Unreachable(t *testing.T) {
	t.Parallel()
	// Grab a free port and close it so nothing listens there.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	d := testDescriptor()
	d.Host = "127.0.0.1"
	d.Port = port

	err = NewRedisVerifier(500*time.Millisecond).Verify(context.Background(), d)
	if err == nil {
		t.Fatal("Expected ping to fail")
	}
	if want := "ping 127.0.0.1:" + strconv.Itoa(port); !strings.HasPrefix(err.Error(), want) {
		t.Errorf("Unexpected error %q", err)
	}
}
