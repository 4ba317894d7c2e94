package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ContentKind tags the variant held by MessageContent.
type ContentKind string

const (
	KindText   ContentKind = "text"
	KindFile   ContentKind = "file"
	KindSystem ContentKind = "system"
)

// SystemAction names the membership event a system message records.
type SystemAction string

const (
	ActionJoin    SystemAction = "join"
	ActionLeave   SystemAction = "leave"
	ActionRemoved SystemAction = "removed"
	ActionCreated SystemAction = "created"
)

var ErrInvalidContent = errors.New("invalid message content")

// Content is one of TextContent, FileContent or SystemContent.
type Content interface {
	Kind() ContentKind
	Validate() error
	// Summary renders the content for previews such as Group.LastMessage.
	Summary() string
	isContent()
}

type TextContent struct {
	Body string `json:"body"`
}

type FileContent struct {
	URL      string `json:"url"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
	Name     string `json:"name,omitempty"`
}

type SystemContent struct {
	Action SystemAction `json:"action"`
	// Subject is the display name the action refers to.
	Subject string `json:"subject,omitempty"`
}

func (TextContent) Kind() ContentKind   { return KindText }
func (FileContent) Kind() ContentKind   { return KindFile }
func (SystemContent) Kind() ContentKind { return KindSystem }

func (TextContent) isContent()   {}
func (FileContent) isContent()   {}
func (SystemContent) isContent() {}

func (c TextContent) Validate() error {
	if strings.TrimSpace(c.Body) == "" {
		return fmt.Errorf("%w: text body is empty", ErrInvalidContent)
	}
	return nil
}

func (c FileContent) Validate() error {
	switch {
	case strings.TrimSpace(c.URL) == "":
		return fmt.Errorf("%w: file url is empty", ErrInvalidContent)
	case strings.TrimSpace(c.MimeType) == "":
		return fmt.Errorf("%w: file mimeType is empty", ErrInvalidContent)
	case c.Size < 0:
		return fmt.Errorf("%w: file size is negative", ErrInvalidContent)
	}
	return nil
}

func (c SystemContent) Validate() error {
	switch c.Action {
	case ActionJoin, ActionLeave, ActionRemoved, ActionCreated:
		return nil
	default:
		return fmt.Errorf("%w: unknown system action %q", ErrInvalidContent, c.Action)
	}
}

func (c TextContent) Summary() string { return c.Body }

func (c FileContent) Summary() string {
	if c.Name != "" {
		return "[file] " + c.Name
	}
	return "[file] " + c.MimeType
}

func (c SystemContent) Summary() string {
	return strings.TrimSpace(c.Subject + " " + string(c.Action))
}

// MessageContent wraps a Content for storage and transport. On the wire it
// is a flat object tagged by "kind".
type MessageContent struct {
	Content
}

func Text(body string) MessageContent { return MessageContent{TextContent{Body: body}} }

func File(url, mimeType string, size int64, name string) MessageContent {
	return MessageContent{FileContent{URL: url, MimeType: mimeType, Size: size, Name: name}}
}

func System(action SystemAction, subject string) MessageContent {
	return MessageContent{SystemContent{Action: action, Subject: subject}}
}

func (m MessageContent) Kind() ContentKind {
	if m.Content == nil {
		return ""
	}
	return m.Content.Kind()
}

// IsZero reports whether no variant is set.
func (m MessageContent) IsZero() bool { return m.Content == nil }

func (m MessageContent) Validate() error {
	if m.Content == nil {
		return fmt.Errorf("%w: missing content", ErrInvalidContent)
	}
	return m.Content.Validate()
}

func (m MessageContent) Summary() string {
	if m.Content == nil {
		return ""
	}
	return m.Content.Summary()
}

func (m MessageContent) MarshalJSON() ([]byte, error) {
	switch c := m.Content.(type) {
	case nil:
		return []byte("null"), nil
	case TextContent:
		return json.Marshal(struct {
			Kind ContentKind `json:"kind"`
			TextContent
		}{KindText, c})
	case FileContent:
		return json.Marshal(struct {
			Kind ContentKind `json:"kind"`
			FileContent
		}{KindFile, c})
	case SystemContent:
		return json.Marshal(struct {
			Kind ContentKind `json:"kind"`
			SystemContent
		}{KindSystem, c})
	default:
		return nil, fmt.Errorf("%w: unsupported content %T", ErrInvalidContent, c)
	}
}

func (m *MessageContent) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		m.Content = nil
		return nil
	}
	var head struct {
		Kind ContentKind `json:"kind"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return err
	}
	switch head.Kind {
	case KindText:
		var c TextContent
		if err := json.Unmarshal(b, &c); err != nil {
			return err
		}
		m.Content = c
	case KindFile:
		var c FileContent
		if err := json.Unmarshal(b, &c); err != nil {
			return err
		}
		m.Content = c
	case KindSystem:
		var c SystemContent
		if err := json.Unmarshal(b, &c); err != nil {
			return err
		}
		m.Content = c
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidContent, head.Kind)
	}
	return nil
}
