package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrInvalidMessage is returned when a billing feed record lacks a required field.
var ErrInvalidMessage = errors.New("invalid message")

// Message is a single record from the billing period feed.
// ID, Timestamp and ReportID are opaque and passed through untouched.
type Message struct {
	ID        json.RawMessage `json:"id"`
	Timestamp json.RawMessage `json:"timestamp"`
	Text      string          `json:"text"`
	ReportID  json.RawMessage `json:"report_id,omitempty"`
}

// BillingPeriod is the payload of the current-period billing feed.
type BillingPeriod struct {
	Messages []Message `json:"messages"`
}

// Validate reports whether the message carries an id.
func (m Message) Validate() error {
	if isNull(m.ID) {
		return fmt.Errorf("%w: missing id", ErrInvalidMessage)
	}
	return nil
}

// ReportKey returns the report identifier as a path segment and whether the
// message references a report at all. Absent, null, "", 0 and false all
// count as "no report".
func (m Message) ReportKey() (string, bool) {
	raw := bytes.TrimSpace(m.ReportID)
	if isNull(raw) {
		return "", false
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil || s == "" {
			return "", false
		}
		return s, true
	case '[', '{':
		return "", false
	}
	if string(raw) == "false" {
		return "", false
	}
	if f, err := strconv.ParseFloat(string(raw), 64); err == nil && f == 0 {
		return "", false
	}
	return string(raw), true
}

// IDString renders the opaque id for logs and tables.
func (m Message) IDString() string {
	return RawString(m.ID)
}

// RawString renders an opaque JSON scalar without quotes.
func RawString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if isNull(raw) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || string(raw) == "null"
}
