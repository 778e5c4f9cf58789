package history

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recordingSink struct {
	events []Event
	err    error
}

func (r *recordingSink) Send(_ context.Context, e Event) error {
	r.events = append(r.events, e)
	return r.err
}

func TestMulti_FansOut(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}
	m := Multi{a, nil, b}
	e := Event{Type: EventCommit, OccurredAt: time.Now().UTC(), Machine: "h", PackageManager: "apt", Attempt: 1}
	if err := m.Send(context.Background(), e); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Fatalf("expected both sinks to receive the event: %d %d", len(a.events), len(b.events))
	}
}

func TestMulti_JoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	a := &recordingSink{err: boom}
	b := &recordingSink{}
	err := Multi{a, b}.Send(context.Background(), Event{Type: EventRetry})
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error to contain boom, got %v", err)
	}
	if len(b.events) != 1 {
		t.Fatalf("a failing sink must not stop the others")
	}
}

func TestNop(t *testing.T) {
	if err := (Nop{}).Send(context.Background(), Event{}); err != nil {
		t.Fatalf("nop returned %v", err)
	}
}
