package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// mockEventEmitter implements EventEmitter for tests.
type mockEventEmitter struct {
	mu      sync.Mutex
	events  []*Event
	ctxErrs []error
	emitErr error
	done    chan struct{}
}

func newMockEmitter(expected int) *mockEventEmitter {
	return &mockEventEmitter{done: make(chan struct{}, expected)}
}

func (m *mockEventEmitter) Emit(ctx context.Context, event *Event) error {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.ctxErrs = append(m.ctxErrs, ctx.Err())
	m.mu.Unlock()
	m.done <- struct{}{}
	return m.emitErr
}

func (m *mockEventEmitter) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-m.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for emit %d of %d", i+1, n)
		}
	}
}

func TestEmitAsync_NilEmitterOrEvent(t *testing.T) {
	// Neither call should panic or start a goroutine that panics.
	EmitAsync(context.Background(), nil, &Event{Type: EventLoginFailed}, nil)
	em := newMockEmitter(1)
	EmitAsync(context.Background(), em, nil, nil)
	time.Sleep(20 * time.Millisecond)
	if len(em.events) != 0 {
		t.Errorf("nil event should not be emitted, got %d", len(em.events))
	}
}

func TestEmitAsync_SuccessfulEmit(t *testing.T) {
	em := newMockEmitter(1)
	EmitAsync(context.Background(), em, &Event{Type: EventLoginSucceeded, UserID: "u1"}, nil)
	em.wait(t, 1)

	em.mu.Lock()
	defer em.mu.Unlock()
	if em.events[0].UserID != "u1" {
		t.Errorf("user_id = %q", em.events[0].UserID)
	}
	if em.events[0].CreatedAt.IsZero() {
		t.Error("CreatedAt should be filled in")
	}
}

func TestEmitAsync_IgnoresRequestCancellation(t *testing.T) {
	em := newMockEmitter(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	EmitAsync(ctx, em, &Event{Type: EventLoggedOut}, nil)
	em.wait(t, 1)

	em.mu.Lock()
	defer em.mu.Unlock()
	if em.ctxErrs[0] != nil {
		t.Errorf("emit context should not be canceled, got %v", em.ctxErrs[0])
	}
}

func TestEmitAsync_ErrorIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	em := newMockEmitter(1)
	em.emitErr = errors.New("collector down")
	EmitAsync(context.Background(), em, &Event{Type: EventAccountLocked}, zap.New(core))
	em.wait(t, 1)

	deadline := time.Now().Add(2 * time.Second)
	for logs.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if logs.Len() != 1 {
		t.Fatalf("expected 1 warning, got %d", logs.Len())
	}
}

func TestEmitAsync_ConcurrentAccess(t *testing.T) {
	const n = 20
	em := newMockEmitter(n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			EmitAsync(context.Background(), em, &Event{Type: EventTokenRefreshed}, nil)
		}()
	}
	wg.Wait()
	em.wait(t, n)
}
