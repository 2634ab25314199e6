package stream

import (
	"encoding/base64"
	"fmt"
	"unicode/utf8"

	"github.com/gitopia/gitopia-discord-bot/internal/domain"
)

// MessageEventType is the only event kind that carries gitopia attributes.
const MessageEventType = "message"

// Decode converts a raw event into its attributes. ok is false for events that
// are not of the message kind. A malformed attribute fails the whole event.
func Decode(event domain.RawEvent) (attrs domain.EventAttributes, ok bool, err error) {
	if event.Type != MessageEventType {
		return nil, false, nil
	}

	attrs = make(domain.EventAttributes, len(event.Attributes))
	for i, a := range event.Attributes {
		key, err := decodeString(a.Key)
		if err != nil {
			return nil, false, fmt.Errorf("attribute %d key: %w", i, err)
		}
		value, err := decodeString(a.Value)
		if err != nil {
			return nil, false, fmt.Errorf("attribute %q value: %w", key, err)
		}
		attrs[key] = value
	}
	return attrs, true, nil
}

// EncodeAttributes builds the wire form of a message event from attributes.
func EncodeAttributes(attrs domain.EventAttributes) domain.RawEvent {
	event := domain.RawEvent{Type: MessageEventType}
	for k, v := range attrs {
		event.Attributes = append(event.Attributes, domain.RawEventAttribute{
			Key:   base64.StdEncoding.EncodeToString([]byte(k)),
			Value: base64.StdEncoding.EncodeToString([]byte(v)),
		})
	}
	return event
}

func decodeString(s string) (string, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("base64: %w", err)
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("invalid utf-8")
	}
	return string(b), nil
}
