package stream

import (
	"encoding/json"
	"testing"

	"github.com/pingup/pingup/internal/logging"
	"github.com/pingup/pingup/internal/metrics"
)

func TestBroker_SendDeliversSerializedEvent(t *testing.T) {
	r := NewRegistry()
	h := newFakeHandle()
	r.Register("bob", h)

	b := NewBroker(r, logging.NewNop(), metrics.NewNop())

	delivered := b.Send("bob", map[string]string{"text": "hi"})
	if !delivered {
		t.Fatal("expected delivery to a registered subject")
	}
	if h.writeCount() != 1 {
		t.Fatalf("expected 1 write, got %d", h.writeCount())
	}

	var got map[string]string
	if err := json.Unmarshal(h.writes[0], &got); err != nil {
		t.Fatalf("frame is not valid JSON: %v", err)
	}
	if got["text"] != "hi" {
		t.Errorf("expected text %q, got %q", "hi", got["text"])
	}
}

func TestBroker_SendToAbsentSubject(t *testing.T) {
	b := NewBroker(NewRegistry(), logging.NewNop(), metrics.NewNop())

	if b.Send("nobody", map[string]string{"text": "hi"}) {
		t.Error("expected not delivered for an unregistered subject")
	}
}

func TestBroker_SendUnserializableEvent(t *testing.T) {
	r := NewRegistry()
	h := newFakeHandle()
	r.Register("bob", h)

	b := NewBroker(r, logging.NewNop(), metrics.NewNop())

	if b.Send("bob", make(chan int)) {
		t.Error("expected not delivered for an unserializable event")
	}
	if h.writeCount() != 0 {
		t.Error("no frame should reach the handle on marshal failure")
	}
	// The handle survives; only write failures evict.
	if _, ok := r.Lookup("bob"); !ok {
		t.Error("handle was evicted on a marshal failure")
	}
}

func TestBroker_WriteFailureEvictsHandle(t *testing.T) {
	r := NewRegistry()
	h := newFakeHandle()
	h.writeErr = errBrokenPipe
	r.Register("bob", h)

	b := NewBroker(r, logging.NewNop(), metrics.NewNop())

	if b.Send("bob", map[string]string{"text": "hi"}) {
		t.Fatal("expected not delivered on write failure")
	}
	if _, ok := r.Lookup("bob"); ok {
		t.Error("failed handle was not evicted")
	}
	if !h.isClosed() {
		t.Error("failed handle was not closed")
	}

	// Subsequent sends see no handle and stay best-effort.
	if b.Send("bob", map[string]string{"text": "again"}) {
		t.Error("expected not delivered after eviction")
	}
}
