// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/contextstore/lib/schema/contextentry"
)

type sampleRecord struct {
	SessionID   string    `json:"session_id"`
	AccessCount int64     `json:"access_count"`
	LastAccess  time.Time `json:"last_access"`
	Note        string    `json:"note,omitempty"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := sampleRecord{
		SessionID:   "s1",
		AccessCount: 42,
		LastAccess:  time.Date(2026, 2, 28, 14, 0, 0, 123456789, time.UTC),
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded sampleRecord
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if decoded.SessionID != original.SessionID || decoded.AccessCount != original.AccessCount {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
	// Nanosecond precision matters for access ordering.
	if !decoded.LastAccess.Equal(original.LastAccess) {
		t.Errorf("LastAccess = %v, want %v", decoded.LastAccess, original.LastAccess)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	value := map[string]any{"b": 2, "a": 1, "c": []any{"x", "y"}}

	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for range 10 {
		again, err := Marshal(value)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatal("Marshal produced different bytes for the same map")
		}
	}
}

func TestJSONTagFallback(t *testing.T) {
	data, err := Marshal(sampleRecord{SessionID: "s1"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	diagnostic, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !strings.Contains(diagnostic, `"session_id"`) {
		t.Errorf("expected json tag name in encoding, got %s", diagnostic)
	}
	if strings.Contains(diagnostic, `"note"`) {
		t.Errorf("omitempty field was encoded: %s", diagnostic)
	}
}

func TestContentRoundtrip(t *testing.T) {
	tests := []struct {
		name    string
		content any
	}{
		{"map", map[string]any{"msg": "hello", "turns": int64(3)}},
		{"nested", map[string]any{"messages": []any{map[string]any{"role": "user", "text": "hi"}}}},
		{"string", "plain text context"},
		{"bytes", []byte{0x00, 0xff, 0x10}},
		{"float", 1.5},
		{"nil", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeContent(tt.content)
			if err != nil {
				t.Fatalf("EncodeContent: %v", err)
			}
			decoded, err := DecodeContent(data)
			if err != nil {
				t.Fatalf("DecodeContent: %v", err)
			}
			if !reflect.DeepEqual(decoded, tt.content) {
				t.Errorf("roundtrip = %#v, want %#v", decoded, tt.content)
			}
		})
	}
}

func TestEncodeContentRejectsUnserializable(t *testing.T) {
	_, err := EncodeContent(map[string]any{"callback": func() {}})
	if !errors.Is(err, contextentry.ErrInvalidPayload) {
		t.Errorf("EncodeContent(func) error = %v, want ErrInvalidPayload", err)
	}
}

func TestDecodeContentRejectsGarbage(t *testing.T) {
	_, err := DecodeContent([]byte{0xff, 0xff, 0xff})
	if !errors.Is(err, contextentry.ErrInvalidPayload) {
		t.Errorf("DecodeContent(garbage) error = %v, want ErrInvalidPayload", err)
	}
}
