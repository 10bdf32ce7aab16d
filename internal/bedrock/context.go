package bedrock

import (
	"encoding/json"
	"log/slog"
)

// Event is a decoded inbound event: the Bedrock event name plus its
// event-specific properties, left as raw JSON for the handler to interpret
// with its own struct.
type Event struct {
	Name       string
	Properties json.RawMessage
}

// EventContext is the immutable snapshot handed to a registered Handler. It
// borrows the owning session for the duration of the handler call; handlers
// must not retain it past their own completion.
type EventContext struct {
	Session *Session
	Event   Event
	Raw     Envelope
}

// newEventContext builds the context passed to every handler dispatched for
// a single received event envelope.
func newEventContext(s *Session, ev Event, raw Envelope) *EventContext {
	return &EventContext{Session: s, Event: ev, Raw: raw}
}

// Properties unmarshals the event's properties into v. It is a convenience
// wrapper so handlers do not need to import encoding/json themselves for the
// common case of decoding into a typed struct.
func (c *EventContext) Properties(v any) error {
	return json.Unmarshal(c.Event.Properties, v)
}

// Reply sends text back to the triggering player via a "say" command. It is
// the common case of RunCommand that application handlers reach for most
// often; errors are logged rather than returned so handler code calling it
// fire-and-forget doesn't need its own error path.
func (c *EventContext) Reply(text string) {
	if _, err := c.Session.RunCommand("say " + text); err != nil {
		c.Session.logger.Warn("bedrock: reply command failed",
			slog.String("event", c.Event.Name),
			slog.Any("error", err),
		)
	}
}

// RunCommand issues cmd on the owning session and awaits its correlated
// response.
func (c *EventContext) RunCommand(cmd string) (*CommandResult, error) {
	return c.Session.RunCommand(cmd)
}

// Subscribe subscribes the owning session to eventName.
func (c *EventContext) Subscribe(eventName string) error {
	return c.Session.Subscribe(eventName)
}

// Unsubscribe unsubscribes the owning session from eventName.
func (c *EventContext) Unsubscribe(eventName string) error {
	return c.Session.Unsubscribe(eventName)
}
