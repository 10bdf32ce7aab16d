// Package bedrock implements the Minecraft Bedrock Edition client protocol
// layered on top of a raw WebSocket connection: the JSON envelope shape,
// per-client session state (subscriptions, in-flight command correlation),
// and the event handler registry. It knows nothing about frame bytes; it
// consumes and produces JSON text messages handed to it by package wsproto.
package bedrock

import (
	"encoding/json"
	"fmt"
)

// Message purposes recognized in header.messagePurpose.
const (
	PurposeCommandRequest  = "commandRequest"
	PurposeCommandResponse = "commandResponse"
	PurposeEvent           = "event"
	PurposeError           = "error"
	PurposeSubscribe       = "subscribe"
	PurposeUnsubscribe     = "unsubscribe"
)

// protocolVersion is the header.version value this server emits.
const protocolVersion = 1

// Header is the envelope's routing metadata.
type Header struct {
	Version        int    `json:"version"`
	RequestID      string `json:"requestId"`
	MessagePurpose string `json:"messagePurpose"`
	MessageType    string `json:"messageType,omitempty"`
}

// Envelope is the top-level Bedrock wire message: a header plus an
// opaque body whose shape depends on MessagePurpose.
type Envelope struct {
	Header Header          `json:"header"`
	Body   json.RawMessage `json:"body"`
}

// ParseEnvelope decodes a received text message into an Envelope and
// validates the minimal shape required for routing (a messagePurpose
// string). It does not interpret Body; callers decode that per purpose.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("bedrock: malformed envelope: %w", err)
	}
	if env.Header.MessagePurpose == "" {
		return Envelope{}, fmt.Errorf("bedrock: envelope missing header.messagePurpose")
	}
	return env, nil
}

// commandOrigin identifies who a commandRequest is issued on behalf of. This
// server only ever issues player-originated commands.
type commandOrigin struct {
	Type string `json:"type"`
}

type commandRequestBody struct {
	Version     int           `json:"version"`
	CommandLine string        `json:"commandLine"`
	Origin      commandOrigin `json:"origin"`
}

// commandResponseBody is the shape of an inbound commandResponse/error body.
type commandResponseBody struct {
	StatusCode    int32  `json:"statusCode"`
	StatusMessage string `json:"statusMessage"`
}

type subscriptionBody struct {
	EventName string `json:"eventName"`
}

// eventBody is the shape of an inbound event body: the event name plus its
// (event-specific) properties, left undecoded for callers to interpret.
type eventBody struct {
	EventName  string          `json:"eventName"`
	Properties json.RawMessage `json:"properties"`
}

// buildCommandRequest constructs the outbound commandRequest envelope for
// requestID and commandLine.
func buildCommandRequest(requestID, commandLine string) (Envelope, error) {
	body, err := json.Marshal(commandRequestBody{
		Version:     protocolVersion,
		CommandLine: commandLine,
		Origin:      commandOrigin{Type: "player"},
	})
	if err != nil {
		return Envelope{}, fmt.Errorf("bedrock: marshal commandRequest body: %w", err)
	}
	return Envelope{
		Header: Header{
			Version:        protocolVersion,
			RequestID:      requestID,
			MessagePurpose: PurposeCommandRequest,
			MessageType:    PurposeCommandRequest,
		},
		Body: body,
	}, nil
}

// buildSubscription constructs the outbound subscribe/unsubscribe envelope
// for eventName.
func buildSubscription(purpose, requestID, eventName string) (Envelope, error) {
	body, err := json.Marshal(subscriptionBody{EventName: eventName})
	if err != nil {
		return Envelope{}, fmt.Errorf("bedrock: marshal %s body: %w", purpose, err)
	}
	return Envelope{
		Header: Header{
			Version:        protocolVersion,
			RequestID:      requestID,
			MessagePurpose: purpose,
			MessageType:    PurposeCommandRequest,
		},
		Body: body,
	}, nil
}

// decodeCommandResponse extracts the status code and message from a
// commandResponse/error envelope body.
func decodeCommandResponse(body json.RawMessage) (code int32, message string, err error) {
	var b commandResponseBody
	if err := json.Unmarshal(body, &b); err != nil {
		return 0, "", fmt.Errorf("bedrock: malformed commandResponse body: %w", err)
	}
	return b.StatusCode, b.StatusMessage, nil
}

// decodeEvent extracts the event name and raw properties from an event
// envelope body.
func decodeEvent(body json.RawMessage) (name string, properties json.RawMessage, err error) {
	var b eventBody
	if err := json.Unmarshal(body, &b); err != nil {
		return "", nil, fmt.Errorf("bedrock: malformed event body: %w", err)
	}
	if b.EventName == "" {
		return "", nil, fmt.Errorf("bedrock: event body missing eventName")
	}
	return b.EventName, b.Properties, nil
}
