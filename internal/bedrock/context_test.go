package bedrock_test

import (
	"context"
	"testing"
	"time"

	"github.com/bedrockrelay/server/internal/bedrock"
)

func TestEventContextPropertiesDecodesPayload(t *testing.T) {
	t.Parallel()
	tr := newFakeTransport()
	reg := bedrock.NewRegistry()

	type props struct {
		Sender string `json:"Sender"`
	}
	decoded := make(chan props, 1)
	reg.On("PlayerMessage", true, func(ctx *bedrock.EventContext) {
		var p props
		if err := ctx.Properties(&p); err != nil {
			t.Errorf("Properties: %v", err)
			return
		}
		decoded <- p
	})

	s := bedrock.NewSession(context.Background(), tr, reg, time.Second, discardLogger())
	go s.Run()

	tr.inject(t, bedrock.Envelope{
		Header: bedrock.Header{Version: 1, RequestID: "r1", MessagePurpose: bedrock.PurposeEvent},
		Body:   mustJSON(t, map[string]any{"eventName": "PlayerMessage", "properties": map[string]any{"Sender": "Bob"}}),
	})

	select {
	case p := <-decoded:
		if p.Sender != "Bob" {
			t.Fatalf("Sender = %q, want Bob", p.Sender)
		}
	case <-time.After(time.Second):
		t.Fatal("handler never ran")
	}
}

// TestEventContextRunCommandRoundTrips exercises a handler that issues a
// command and receives its correlated response, the machinery behind
// EventContext.Reply.
func TestEventContextRunCommandRoundTrips(t *testing.T) {
	t.Parallel()
	tr := newFakeTransport()
	reg := bedrock.NewRegistry()

	result := make(chan error, 1)
	reg.On("PlayerMessage", true, func(ctx *bedrock.EventContext) {
		_, err := ctx.RunCommand("say hi back")
		result <- err
	})

	s := bedrock.NewSession(context.Background(), tr, reg, 2*time.Second, discardLogger())
	go s.Run()

	tr.inject(t, bedrock.Envelope{
		Header: bedrock.Header{Version: 1, RequestID: "r1", MessagePurpose: bedrock.PurposeEvent},
		Body:   mustJSON(t, map[string]any{"eventName": "PlayerMessage", "properties": map[string]any{}}),
	})

	// Wait for the subsequent commandRequest the handler issues, then reply.
	var reqID string
	deadline := time.After(time.Second)
	for reqID == "" {
		tr.mu.Lock()
		for _, sent := range tr.sent {
			reqID = requestIDOf(t, sent)
		}
		tr.mu.Unlock()
		select {
		case <-deadline:
			t.Fatal("commandRequest never sent by handler")
		case <-time.After(time.Millisecond):
		}
	}

	tr.inject(t, bedrock.Envelope{
		Header: bedrock.Header{Version: 1, RequestID: reqID, MessagePurpose: bedrock.PurposeCommandResponse},
		Body:   mustJSON(t, map[string]any{"statusCode": 0, "statusMessage": "ok"}),
	})

	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("handler's RunCommand: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("handler never completed")
	}
}

func TestEventContextSubscribeUnsubscribe(t *testing.T) {
	t.Parallel()
	tr := newFakeTransport()
	reg := bedrock.NewRegistry()
	s := bedrock.NewSession(context.Background(), tr, reg, time.Second, discardLogger())

	done := make(chan error, 2)
	ctx := &bedrock.EventContext{Session: s, Event: bedrock.Event{Name: "X"}}
	go func() { done <- ctx.Subscribe("PlayerDeath") }()
	if err := <-done; err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	go func() { done <- ctx.Unsubscribe("PlayerDeath") }()
	if err := <-done; err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
}
