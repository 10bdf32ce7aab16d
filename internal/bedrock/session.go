package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bedrockrelay/server/internal/audit"
	"github.com/bedrockrelay/server/internal/wsproto"
)

// Transport is the subset of a wsproto.Conn a Session needs. Sessions depend
// on this interface rather than the concrete type so they can be driven by
// an in-memory fake in tests.
type Transport interface {
	SendText(payload []byte) error
	Messages() <-chan wsproto.Message
	Done() <-chan struct{}
	Close(code uint16, reason string)
}

// CommandResult is the successful outcome of Session.RunCommand.
type CommandResult struct {
	Code    int32
	Message string
}

// Session owns one transport and the per-client state layered on top of it:
// the subscription set and the pending commandRequest/commandResponse
// correlation table.
type Session struct {
	ID string

	tr       Transport
	registry *Registry
	logger   *slog.Logger

	commandTimeout time.Duration

	subMu sync.Mutex
	subs  map[string]bool

	pending sync.Map // requestID (string) -> *Waiter

	audit *audit.Trail // optional command audit trail; nil disables it

	wg sync.WaitGroup // in-flight dispatched handler goroutines

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
}

// NewSession creates a Session over tr, assigning it a fresh UUID v4 client
// id. parent is the server's shutdown context; cancelling it cancels the
// session's Context, which handlers reach through EventContext.Session, and
// makes Run close the session.
func NewSession(parent context.Context, tr Transport, registry *Registry, commandTimeout time.Duration, logger *slog.Logger) *Session {
	ctx, cancel := context.WithCancel(parent)
	id := uuid.NewString()
	return &Session{
		ID:             id,
		tr:             tr,
		registry:       registry,
		logger:         logger.With(slog.String("session_id", id)),
		commandTimeout: commandTimeout,
		subs:           make(map[string]bool),
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Run consumes messages from the transport and dispatches them until the
// transport is done or the session's context is cancelled. It returns when
// the dispatch loop ends; callers typically run it in its own goroutine.
func (s *Session) Run() {
	for {
		select {
		case msg, ok := <-s.tr.Messages():
			if !ok {
				s.Close(wsproto.CloseNormal, "")
				return
			}
			s.handleMessage(msg)
		case <-s.tr.Done():
			s.Close(wsproto.CloseNormal, "")
			return
		case <-s.ctx.Done():
			s.Close(wsproto.CloseGoingAway, "server shutting down")
			return
		}
	}
}

// handleMessage decodes one inbound application message and routes it by
// header.messagePurpose. Envelope and routing errors are logged and
// otherwise ignored; they never close the session.
func (s *Session) handleMessage(msg wsproto.Message) {
	if msg.Opcode != wsproto.OpText {
		s.logger.Warn("bedrock: ignoring non-text application message", slog.Any("opcode", msg.Opcode))
		return
	}

	env, err := ParseEnvelope(msg.Payload)
	if err != nil {
		s.logger.Warn("bedrock: dropping malformed envelope", slog.Any("error", err))
		return
	}

	switch env.Header.MessagePurpose {
	case PurposeCommandResponse, PurposeError:
		s.resolveWaiter(env)
	case PurposeEvent:
		s.dispatchEvent(env)
	default:
		s.logger.Debug("bedrock: ignoring unknown messagePurpose", slog.String("purpose", env.Header.MessagePurpose))
	}
}

// resolveWaiter delivers env to the waiter installed for its requestId, if
// any is still pending. A response with no matching waiter is discarded
// silently.
func (s *Session) resolveWaiter(env Envelope) {
	v, ok := s.pending.LoadAndDelete(env.Header.RequestID)
	if !ok {
		return
	}
	v.(*Waiter).deliver(env)
}

// dispatchEvent looks up handlers for the event and invokes each in its own
// goroutine. A handler's panic is recovered and logged; it does not affect
// sibling handlers or the session.
func (s *Session) dispatchEvent(env Envelope) {
	name, props, err := decodeEvent(env.Body)
	if err != nil {
		s.logger.Warn("bedrock: dropping malformed event body", slog.Any("error", err))
		return
	}

	handlers := s.registry.Lookup(name)
	if len(handlers) == 0 {
		s.logger.Debug("bedrock: no handler registered for event", slog.String("event", name))
		return
	}

	ctx := newEventContext(s, Event{Name: name, Properties: props}, env)
	for _, h := range handlers {
		h := h
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("bedrock: handler panicked", slog.String("event", name), slog.Any("panic", r))
				}
			}()
			h(ctx)
		}()
	}
}

// RunCommand issues a commandRequest and awaits its correlated response. On
// success it returns the parsed statusCode/statusMessage; a non-zero
// statusCode yields a *CommandError rather than a nil error.
func (s *Session) RunCommand(commandLine string) (*CommandResult, error) {
	requestID := uuid.NewString()
	env, err := buildCommandRequest(requestID, commandLine)
	if err != nil {
		return nil, err
	}

	w := newWaiter()
	s.pending.Store(requestID, w)

	data, err := json.Marshal(env)
	if err != nil {
		s.pending.Delete(requestID)
		return nil, fmt.Errorf("bedrock: marshal commandRequest: %w", err)
	}
	if err := s.tr.SendText(data); err != nil {
		s.pending.Delete(requestID)
		return nil, fmt.Errorf("bedrock: send commandRequest: %w", err)
	}

	reply, err := w.wait(s.commandTimeout)
	s.pending.Delete(requestID)
	if err != nil {
		outcome := audit.OutcomeTimeout
		if err == ErrSessionClosed {
			outcome = audit.OutcomeShutdown
		}
		s.logCommand(requestID, commandLine, outcome, 0, err.Error())
		return nil, err
	}

	code, message, err := decodeCommandResponse(reply.Body)
	if err != nil {
		return nil, err
	}
	if code != 0 {
		s.logCommand(requestID, commandLine, audit.OutcomeCmdError, code, message)
		return nil, &CommandError{Code: code, Message: message, CommandLine: commandLine}
	}
	s.logCommand(requestID, commandLine, audit.OutcomeOK, code, message)
	return &CommandResult{Code: code, Message: message}, nil
}

// Subscribe sends a subscribe message for eventName and optimistically adds
// it to the subscription set once the send succeeds. Re-subscribing to an
// already-subscribed name is a no-op.
func (s *Session) Subscribe(eventName string) error {
	return s.setSubscription(PurposeSubscribe, eventName, true)
}

// Unsubscribe sends an unsubscribe message for eventName and removes it from
// the subscription set once the send succeeds. Unsubscribing from a name
// not in the set is a no-op.
func (s *Session) Unsubscribe(eventName string) error {
	return s.setSubscription(PurposeUnsubscribe, eventName, false)
}

func (s *Session) setSubscription(purpose, eventName string, want bool) error {
	s.subMu.Lock()
	if s.subs[eventName] == want {
		s.subMu.Unlock()
		return nil
	}
	s.subMu.Unlock()

	env, err := buildSubscription(purpose, uuid.NewString(), eventName)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("bedrock: marshal %s: %w", purpose, err)
	}
	if err := s.tr.SendText(data); err != nil {
		return fmt.Errorf("bedrock: send %s for %q: %w", purpose, eventName, err)
	}

	s.subMu.Lock()
	if want {
		s.subs[eventName] = true
	} else {
		delete(s.subs, eventName)
	}
	s.subMu.Unlock()
	return nil
}

// Subscriptions returns a snapshot of the currently subscribed event names.
func (s *Session) Subscriptions() []string {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	names := make([]string, 0, len(s.subs))
	for name := range s.subs {
		names = append(names, name)
	}
	return names
}

// SetAuditor attaches a command audit trail to the session. Every
// subsequent RunCommand that resolves as ok, command error, timeout, or
// shutdown is appended to it; a call whose request cannot be sent, or whose
// reply body cannot be decoded, is not recorded. Pass nil to disable
// auditing; a session without an auditor logs nothing.
func (s *Session) SetAuditor(a *audit.Trail) { s.audit = a }

// logCommand appends one command audit record if an auditor is attached. It
// never fails the caller; audit write errors are logged and swallowed since
// losing an audit line must not affect session behavior.
func (s *Session) logCommand(requestID, commandLine string, outcome audit.Outcome, code int32, message string) {
	if s.audit == nil {
		return
	}
	if _, err := s.audit.Record(audit.Command{
		SessionID:     s.ID,
		RequestID:     requestID,
		CommandLine:   commandLine,
		Outcome:       outcome,
		StatusCode:    code,
		StatusMessage: message,
	}); err != nil {
		s.logger.Warn("bedrock: audit trail write failed", slog.Any("error", err))
	}
}

// Context returns the session's lifetime context, cancelled as soon as
// Close runs. Handlers that perform long-running work may select on
// Context().Done() to cooperate with shutdown.
func (s *Session) Context() context.Context { return s.ctx }

// Close tears the session down: it cancels the session context, closes the
// transport with the given close code and reason, aborts every pending
// command waiter with ErrSessionClosed, and clears the subscription set.
// Close is idempotent; only the first call has any effect.
func (s *Session) Close(code uint16, reason string) {
	s.closeOnce.Do(func() {
		s.cancel()
		s.tr.Close(code, reason)

		s.pending.Range(func(key, value any) bool {
			value.(*Waiter).abort(ErrSessionClosed)
			s.pending.Delete(key)
			return true
		})

		s.subMu.Lock()
		s.subs = make(map[string]bool)
		s.subMu.Unlock()
	})
}

// AwaitHandlers blocks until every handler goroutine dispatched by this
// session has returned, or until timeout elapses, whichever comes first.
// Used by graceful shutdown to bound how long it waits on user code.
func (s *Session) AwaitHandlers(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		s.logger.Warn("bedrock: handler tasks still running after grace period")
	}
}
