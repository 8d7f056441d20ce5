package models

import (
	"encoding/json"
	"fmt"
)

// MessageType tags how a message's content, transcription and images are interpreted.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeAudio MessageType = "audio"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeAudio:
		return true
	}
	return false
}

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single log entry. It is immutable once stored.
//
// ID is the sequence id assigned by the log engine, never by the caller.
// Transcription is only set for audio messages and Images only for image
// messages; neither is enforced here.
type Message struct {
	Type          MessageType `json:"msgtype"`
	ID            int         `json:"id"`
	Role          Role        `json:"role"`
	Content       string      `json:"content"`
	Transcription *string     `json:"transcription,omitempty"`
	Images        []string    `json:"images,omitempty"`
}

// UserMessage is the caller-supplied half of an exchange.
type UserMessage struct {
	Type          MessageType `json:"msgtype"`
	Content       string      `json:"content"`
	Transcription *string     `json:"transcription,omitempty"`
	Images        []string    `json:"images,omitempty"`
}

// UnmarshalJSON rejects messages without a known variant tag.
func (m *Message) UnmarshalJSON(data []byte) error {
	type plain Message
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if !p.Type.Valid() {
		return fmt.Errorf("unknown msgtype %q", p.Type)
	}
	*m = Message(p)
	return nil
}

// CloneLog copies a log including each message's image slice.
func CloneLog(log []Message) []Message {
	out := make([]Message, len(log))
	for i, m := range log {
		if m.Images != nil {
			m.Images = append([]string(nil), m.Images...)
		}
		if m.Transcription != nil {
			t := *m.Transcription
			m.Transcription = &t
		}
		out[i] = m
	}
	return out
}

// EncodeLog converts a log to its structured JSON array value.
func EncodeLog(log []Message) ([]byte, error) {
	if log == nil {
		log = []Message{}
	}
	data, err := json.Marshal(log)
	if err != nil {
		return nil, fmt.Errorf("encode log: %w", err)
	}
	return data, nil
}

// DecodeLog parses a structured JSON array value into a log.
// A null or empty value decodes to an empty log.
func DecodeLog(data []byte) ([]Message, error) {
	if len(data) == 0 {
		return []Message{}, nil
	}
	var log []Message
	if err := json.Unmarshal(data, &log); err != nil {
		return nil, fmt.Errorf("decode log: %w", err)
	}
	if log == nil {
		log = []Message{}
	}
	return log, nil
}
