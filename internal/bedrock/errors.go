package bedrock

import (
	"errors"
	"fmt"
)

// ErrCommandTimeout is returned by Session.RunCommand when no commandResponse
// arrives within the configured command timeout.
var ErrCommandTimeout = errors.New("bedrock: command timed out")

// ErrSessionClosed is returned to any caller awaiting a command waiter when
// the session closes out from under it.
var ErrSessionClosed = errors.New("bedrock: session closed")

// CommandError reports a commandResponse with a non-zero statusCode.
type CommandError struct {
	Code        int32
	Message     string
	CommandLine string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("bedrock: command %q failed (code %d): %s", e.CommandLine, e.Code, e.Message)
}
