// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/bureau-foundation/contextstore/lib/schema/contextentry"
)

var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	// Unix-seconds timestamps would truncate access times written back
	// by the hot tier.
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Content is produced by JSON-minded callers. The CBOR default
		// for an any-typed map is map[interface{}]interface{}, which
		// neither encoding/json nor most consumers accept.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		// Positive integers decode as uint64 by default; int64 keeps
		// small counters and ids comparable with Go literals.
		IntDec: cbor.IntDecConvertSigned,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// EncodeContent serializes an entry payload. A payload that cannot be
// represented (channels, functions, cyclic values) is rejected with
// ErrInvalidPayload.
func EncodeContent(content any) ([]byte, error) {
	data, err := encMode.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("%w: encode content: %w", contextentry.ErrInvalidPayload, err)
	}
	return data, nil
}

// DecodeContent deserializes a payload produced by EncodeContent.
func DecodeContent(data []byte) (any, error) {
	var content any
	if err := decMode.Unmarshal(data, &content); err != nil {
		return nil, fmt.Errorf("%w: decode content: %w", contextentry.ErrInvalidPayload, err)
	}
	return content, nil
}

// RawMessage is a raw encoded CBOR value, re-exported so callers need
// only this package.
type RawMessage = cbor.RawMessage

// Diagnose returns the CBOR diagnostic notation (RFC 8949 §8) for
// data. The CLI uses it to print payloads that fail to decode.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}
