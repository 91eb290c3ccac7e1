package database

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestAcquireSingleFlight(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}

	var opens int32
	m := NewManagerWithOpener(ManagerConfig{DatabaseURL: "postgres://test"},
		func(string) (*sql.DB, error) {
			atomic.AddInt32(&opens, 1)
			// Hold the attempt open so every other caller queues.
			time.Sleep(50 * time.Millisecond)
			return db, nil
		})

	const callers = 25
	var wg sync.WaitGroup
	got := make([]*sql.DB, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := m.Acquire(context.Background())
			if err != nil {
				t.Errorf("Acquire() error = %v", err)
				return
			}
			got[i] = h
		}(i)
	}
	wg.Wait()

	if n := atomic.LoadInt32(&opens); n != 1 {
		t.Errorf("connection attempts = %d, want 1", n)
	}
	for i, h := range got {
		if h != db {
			t.Fatalf("caller %d got a different handle", i)
		}
	}
	if s := m.State(); s != StateConnected {
		t.Errorf("State() = %q, want %q", s, StateConnected)
	}
}

func TestAcquireReturnsCachedHandle(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}

	var opens int32
	m := NewManagerWithOpener(ManagerConfig{DatabaseURL: "postgres://test"},
		func(string) (*sql.DB, error) {
			atomic.AddInt32(&opens, 1)
			return db, nil
		})

	for i := 0; i < 5; i++ {
		if _, err := m.Acquire(context.Background()); err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
	}
	if n := atomic.LoadInt32(&opens); n != 1 {
		t.Errorf("connection attempts = %d, want 1", n)
	}
}

func TestAcquireFailureFailsCaller(t *testing.T) {
	m := NewManagerWithOpener(ManagerConfig{DatabaseURL: "postgres://test"},
		func(string) (*sql.DB, error) {
			return nil, errors.New("no route to host")
		})

	_, err := m.Acquire(context.Background())
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("Acquire() error = %v, want ErrConnection", err)
	}
	if s := m.State(); s != StateDisconnected {
		t.Errorf("State() = %q, want %q", s, StateDisconnected)
	}
}

func TestInvalidateForcesReconnect(t *testing.T) {
	db1, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	db2, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}

	var opens int32
	m := NewManagerWithOpener(ManagerConfig{DatabaseURL: "postgres://test"},
		func(string) (*sql.DB, error) {
			if atomic.AddInt32(&opens, 1) == 1 {
				return db1, nil
			}
			return db2, nil
		})

	h, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if h != db1 {
		t.Fatal("first acquire returned the wrong handle")
	}

	m.Invalidate(errors.New("server closed the connection"))
	if s := m.State(); s != StateDisconnected {
		t.Fatalf("State() after Invalidate = %q, want %q", s, StateDisconnected)
	}

	h, err = m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() after Invalidate error = %v", err)
	}
	if h != db2 {
		t.Fatal("second acquire did not reconnect")
	}
	if n := atomic.LoadInt32(&opens); n != 2 {
		t.Errorf("connection attempts = %d, want 2", n)
	}
}

func TestAcquireRespectsCallerContext(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}

	m := NewManagerWithOpener(ManagerConfig{DatabaseURL: "postgres://test"},
		func(string) (*sql.DB, error) {
			entered <- struct{}{}
			<-release
			return db, nil
		})

	// First caller holds the attempt open.
	go m.Acquire(context.Background())
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()
	_, err = m.Acquire(ctx)
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("Acquire() error = %v, want ErrConnection", err)
	}

	close(release)
}
