package authsession

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shootbase/authsession/store"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, Event) {
	s.count.Add(1)
}

func (s *countingSink) Count() int64 {
	return s.count.Load()
}

type gateSink struct {
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{
		gate: make(chan struct{}),
	}
}

func (s *gateSink) Emit(context.Context, Event) {
	<-s.gate
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = false

	sink := &countingSink{}
	mgr, err := New().
		WithConfig(cfg).
		WithStore(store.NewMemoryStore()).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(mgr.Close)

	if err := mgr.Login(context.Background(), adminUser(), "bearer-1"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	if sink.Count() != 0 {
		t.Fatalf("expected no audit sink calls when disabled, got %d", sink.Count())
	}
}

func TestAuditImpersonationCarriesActor(t *testing.T) {
	sink := NewChannelSink(16)
	mgr, err := New().
		WithConfig(testConfig()).
		WithStore(store.NewMemoryStore()).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(mgr.Close)

	ctx := WithRequestID(context.Background(), "req-9")
	if err := mgr.Login(ctx, adminUser(), "bearer-1"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if err := mgr.Impersonate(ctx, targetUser()); err != nil {
		t.Fatalf("impersonate failed: %v", err)
	}

	want := map[string]bool{
		auditEventLogin:                false,
		auditEventImpersonationStarted: false,
	}
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-sink.Events():
			switch ev.EventType {
			case auditEventLogin:
				if ev.UserID != "1" || ev.RequestID != "req-9" {
					t.Fatalf("login event wrong: %+v", ev)
				}
			case auditEventImpersonationStarted:
				if ev.UserID != "42" || ev.ActorID != "1" {
					t.Fatalf("impersonation event must carry target and actor: %+v", ev)
				}
			}
			if _, ok := want[ev.EventType]; ok {
				want[ev.EventType] = true
			}
			done := true
			for _, seen := range want {
				done = done && seen
			}
			if done {
				return
			}
		case <-timeout:
			t.Fatalf("expected audit events never arrived: %+v", want)
		}
	}
}

func TestAuditBufferFullDropIfFullTrueDoesNotBlock(t *testing.T) {
	sink := newGateSink()
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: true,
	}, sink)
	defer func() {
		close(sink.gate)
		dispatcher.Close()
	}()

	dispatcher.Emit(context.Background(), Event{EventType: "e1"})
	dispatcher.Emit(context.Background(), Event{EventType: "e2"})

	start := time.Now()
	dispatcher.Emit(context.Background(), Event{EventType: "e3"})
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("expected non-blocking emit when DropIfFull is true")
	}
	if dispatcher.Dropped() == 0 {
		t.Fatal("expected dropped counter to increment when queue is full")
	}
}

func TestAuditBufferFullDropIfFullFalseBlocksUntilSpace(t *testing.T) {
	sink := newGateSink()
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: false,
	}, sink)
	defer func() {
		close(sink.gate)
		dispatcher.Close()
	}()

	dispatcher.Emit(context.Background(), Event{EventType: "e1"})
	dispatcher.Emit(context.Background(), Event{EventType: "e2"})

	done := make(chan struct{})
	go func() {
		dispatcher.Emit(context.Background(), Event{EventType: "e3"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("expected emit to block while buffer is full")
	case <-time.After(150 * time.Millisecond):
	}

	sink.gate <- struct{}{}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected blocked emit to proceed after space is available")
	}
}

func TestAuditJSONWriterSinkWritesJSONLines(t *testing.T) {
	var buf syncBuffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{
		Timestamp: time.Now().UTC(),
		EventType: auditEventImpersonationStarted,
		UserID:    "42",
		ActorID:   "1",
		Success:   true,
	})

	if !buf.Contains("impersonation_started") {
		t.Fatal("expected JSON log line to contain event type")
	}
	if !buf.Contains(`"actor_id":"1"`) {
		t.Fatal("expected JSON log line to contain actor id")
	}
}

func TestAuditDispatcherCloseIdempotentAndEmitAfterCloseSafe(t *testing.T) {
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 4,
		DropIfFull: true,
	}, &countingSink{})

	dispatcher.Emit(context.Background(), Event{EventType: "e1"})
	dispatcher.Close()
	dispatcher.Close()
	dispatcher.Emit(context.Background(), Event{EventType: "e2"})
}

func TestAuditNoBearerTokenInEvents(t *testing.T) {
	sink := NewChannelSink(32)
	mgr, err := New().
		WithConfig(testConfig()).
		WithStore(store.NewMemoryStore()).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(mgr.Close)

	const bearer = "secret-bearer-value-xyz"
	ctx := context.Background()
	if err := mgr.Login(ctx, adminUser(), bearer); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if err := mgr.Impersonate(ctx, targetUser()); err != nil {
		t.Fatalf("impersonate failed: %v", err)
	}
	if err := mgr.Logout(ctx); err != nil {
		t.Fatalf("logout failed: %v", err)
	}

	events := make([]Event, 0, 8)
	timeout := time.After(2 * time.Second)
collectLoop:
	for len(events) < 8 {
		select {
		case ev := <-sink.Events():
			events = append(events, ev)
		case <-timeout:
			break collectLoop
		}
	}
	if len(events) == 0 {
		t.Fatal("expected at least one audit event")
	}

	for _, ev := range events {
		if strings.Contains(ev.Error, bearer) {
			t.Fatal("bearer token leaked in audit error field")
		}
		for k, v := range ev.Metadata {
			if strings.Contains(k, bearer) || strings.Contains(v, bearer) {
				t.Fatal("bearer token leaked in audit metadata")
			}
		}
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *syncBuffer) Contains(v string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Contains(string(b.buf), v)
}
