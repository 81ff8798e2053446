package eventbus

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/agentsea/turnengine/pkg/engine/api"
)

func TestPublishFanOutToMultipleSubscribers(t *testing.T) {
	b := New(nil)
	sub1 := b.Subscribe("conv1")
	sub2 := b.Subscribe("conv1")
	defer sub1.Close()
	defer sub2.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := b.Publish(ctx, api.Event{ConversationID: "conv1", Type: api.EventDone}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for _, s := range []api.Subscription{sub1, sub2} {
		ev, err := s.Recv(ctx)
		if err != nil {
			t.Fatalf("recv: %v", err)
		}
		if ev.Type != api.EventDone {
			t.Fatalf("unexpected event type: %v", ev.Type)
		}
	}
}

func TestPublishDoesNotCrossConversations(t *testing.T) {
	b := New(nil)
	sub := b.Subscribe("conv1")
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	b.Publish(context.Background(), api.Event{ConversationID: "conv2", Type: api.EventDone})

	_, err := sub.Recv(ctx)
	if err == nil {
		t.Fatalf("expected no event delivered for a different conversation")
	}
}

func TestSubscribeAfterCloseReturnsEOF(t *testing.T) {
	b := New(nil)
	sub := b.Subscribe("conv1")
	sub.Close()

	_, err := sub.Recv(context.Background())
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF after close, got %v", err)
	}
}

func TestJSONLSinkAppend(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewJSONLSink(dir)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	if err := sink.Append(api.Event{ConversationID: "conv1", Type: api.EventDone}); err != nil {
		t.Fatalf("append: %v", err)
	}
}
