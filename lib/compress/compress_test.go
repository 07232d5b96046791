// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package compress

import (
	"bytes"
	"crypto/rand"
	"errors"
	"strings"
	"testing"

	"github.com/bureau-foundation/contextstore/lib/schema/contextentry"
)

func TestAlgorithmString(t *testing.T) {
	tests := []struct {
		algorithm Algorithm
		want      string
	}{
		{AlgorithmNone, "none"},
		{AlgorithmLZ4, "lz4"},
		{AlgorithmZstd, "zstd"},
		{Algorithm(99), "unknown(99)"},
	}
	for _, tt := range tests {
		if got := tt.algorithm.String(); got != tt.want {
			t.Errorf("Algorithm(%d).String() = %q, want %q", tt.algorithm, got, tt.want)
		}
	}
}

func TestParseAlgorithm(t *testing.T) {
	for _, name := range []string{"none", "lz4", "zstd"} {
		algorithm, err := ParseAlgorithm(name)
		if err != nil {
			t.Fatalf("ParseAlgorithm(%q): %v", name, err)
		}
		if algorithm.String() != name {
			t.Errorf("ParseAlgorithm(%q).String() = %q", name, algorithm.String())
		}
	}

	if algorithm, err := ParseAlgorithm(""); err != nil || algorithm != AlgorithmZstd {
		t.Errorf("ParseAlgorithm(\"\") = %v, %v; want zstd default", algorithm, err)
	}
	if _, err := ParseAlgorithm("gzip"); err == nil {
		t.Error("ParseAlgorithm(\"gzip\") should fail")
	}
}

func testInputs(t *testing.T) map[string][]byte {
	t.Helper()

	random := make([]byte, 4096)
	if _, err := rand.Read(random); err != nil {
		t.Fatal(err)
	}

	return map[string][]byte{
		"empty":        {},
		"single byte":  {0x42},
		"short text":   []byte("hello"),
		"json":         []byte(strings.Repeat(`{"role":"assistant","text":"the quick brown fox"},`, 400)),
		"random":       random,
		"zero filled":  make([]byte, 64*1024),
		"magic prefix": {frameMagic, 0x02, 0x00},
	}
}

func TestRoundtrip(t *testing.T) {
	for _, algorithm := range []Algorithm{AlgorithmNone, AlgorithmLZ4, AlgorithmZstd} {
		codec, err := New(algorithm)
		if err != nil {
			t.Fatalf("New(%s): %v", algorithm, err)
		}
		for name, input := range testInputs(t) {
			t.Run(algorithm.String()+"/"+name, func(t *testing.T) {
				frame, err := codec.Compress(input)
				if err != nil {
					t.Fatalf("Compress: %v", err)
				}
				output, err := codec.Decompress(frame)
				if err != nil {
					t.Fatalf("Decompress: %v", err)
				}
				if !bytes.Equal(output, input) {
					t.Errorf("roundtrip mismatch: got %d bytes, want %d", len(output), len(input))
				}
			})
		}
	}
}

func TestEmptyInputDecompressesToEmptySlice(t *testing.T) {
	frame, err := Default().Compress(nil)
	if err != nil {
		t.Fatalf("Compress(nil): %v", err)
	}
	output, err := Default().Decompress(frame)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if output == nil || len(output) != 0 {
		t.Errorf("Decompress(empty frame) = %#v, want empty non-nil slice", output)
	}
}

func TestCompressShrinksCompressibleInput(t *testing.T) {
	input := []byte(strings.Repeat("context context context ", 2000))

	for _, algorithm := range []Algorithm{AlgorithmLZ4, AlgorithmZstd} {
		codec, _ := New(algorithm)
		frame, err := codec.Compress(input)
		if err != nil {
			t.Fatalf("Compress(%s): %v", algorithm, err)
		}
		if len(frame) >= len(input)/4 {
			t.Errorf("%s frame is %d bytes for %d-byte input", algorithm, len(frame), len(input))
		}
		if Algorithm(frame[1]) != algorithm {
			t.Errorf("%s frame carries algorithm tag %s", algorithm, Algorithm(frame[1]))
		}
	}
}

func TestIncompressibleInputStoredRaw(t *testing.T) {
	input := make([]byte, 1024)
	if _, err := rand.Read(input); err != nil {
		t.Fatal(err)
	}

	frame, err := Default().Compress(input)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if Algorithm(frame[1]) != AlgorithmNone {
		t.Errorf("random input stored with %s, want none", Algorithm(frame[1]))
	}
}

func TestDecompressDetectsCorruption(t *testing.T) {
	codec := Default()
	input := []byte(strings.Repeat("abcdefgh", 1000))
	frame, err := codec.Compress(input)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}

	flipped := bytes.Clone(frame)
	flipped[len(flipped)-1] ^= 0xff

	badChecksum := bytes.Clone(frame)
	badChecksum[4] ^= 0x01

	unknownAlgorithm := bytes.Clone(frame)
	unknownAlgorithm[1] = 0x7f

	hugeLength := []byte{frameMagic, byte(AlgorithmNone), 0xff, 0xff, 0xff, 0xff, 0x0f}
	hugeLength = append(hugeLength, make([]byte, checksumLength)...)

	tests := map[string][]byte{
		"nil":               nil,
		"one byte":          {frameMagic},
		"bad magic":         append([]byte{0x00}, frame[1:]...),
		"truncated header":  frame[:4],
		"truncated payload": frame[:len(frame)/2],
		"flipped payload":   flipped,
		"flipped checksum":  badChecksum,
		"unknown algorithm": unknownAlgorithm,
		"huge length":       hugeLength,
		"plain text":        []byte("not a frame at all"),
	}

	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := codec.Decompress(data)
			if !errors.Is(err, contextentry.ErrCorruptPayload) {
				t.Errorf("Decompress error = %v, want ErrCorruptPayload", err)
			}
		})
	}
}

func TestDecompressAcceptsAnyAlgorithm(t *testing.T) {
	lz4Codec, _ := New(AlgorithmLZ4)
	input := []byte(strings.Repeat("warm tier payload ", 500))

	frame, err := lz4Codec.Compress(input)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}

	// A zstd-configured codec must still read frames written with lz4,
	// so the algorithm can change without rewriting stored rows.
	output, err := Default().Decompress(frame)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(output, input) {
		t.Error("cross-algorithm roundtrip mismatch")
	}
}

func TestIsFrame(t *testing.T) {
	frame, _ := Default().Compress([]byte("x"))
	if !IsFrame(frame) {
		t.Error("IsFrame(frame) = false")
	}
	if IsFrame([]byte("plain")) {
		t.Error("IsFrame(plain) = true")
	}
}

func TestNewRejectsUnknownAlgorithm(t *testing.T) {
	if _, err := New(Algorithm(42)); err == nil {
		t.Error("New(42) should fail")
	}
}

func BenchmarkCompressZstd(b *testing.B) {
	input := []byte(strings.Repeat(`{"role":"user","text":"benchmark payload"}`, 1000))
	codec := Default()
	b.SetBytes(int64(len(input)))
	for b.Loop() {
		if _, err := codec.Compress(input); err != nil {
			b.Fatal(err)
		}
	}
}
