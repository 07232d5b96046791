// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package compress implements the storage-level compression codec for
// context payloads. Output is a self-describing frame, so a reader
// needs no out-of-band information to decompress it and any
// truncation or bit flip is detected rather than returned as data.
//
// Frame layout:
//
//	magic      1 byte   0xC5
//	algorithm  1 byte   Algorithm tag
//	raw length uvarint  length of the original input
//	checksum   8 bytes  BLAKE3-256 prefix of the original input
//	payload    rest     compressed (or stored) bytes
//
// When the configured algorithm does not shrink the input, the frame
// stores the input as-is under AlgorithmNone. Empty input produces a
// valid frame that decompresses to an empty slice.
package compress

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/contextstore/lib/schema/contextentry"
)

// Algorithm identifies the compression algorithm inside a frame. The
// values are persisted in stored frames; changing them breaks every
// frame already written.
type Algorithm uint8

const (
	// AlgorithmNone stores the input unchanged. Chosen automatically
	// for incompressible input.
	AlgorithmNone Algorithm = 0

	// AlgorithmLZ4 is LZ4 block compression: fast, modest ratio.
	AlgorithmLZ4 Algorithm = 1

	// AlgorithmZstd is zstd at the default level: better ratio on the
	// JSON-like payloads agents produce.
	AlgorithmZstd Algorithm = 2
)

const (
	frameMagic     = 0xC5
	checksumLength = 8

	// maxRawLength bounds the allocation a frame header can request.
	// Hot entries are capped far below this; a larger declared length
	// means the header is corrupt.
	maxRawLength = 1 << 30
)

// String returns the configuration name of the algorithm.
func (a Algorithm) String() string {
	switch a {
	case AlgorithmNone:
		return "none"
	case AlgorithmLZ4:
		return "lz4"
	case AlgorithmZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(a))
	}
}

// ParseAlgorithm parses an algorithm name as used in configuration.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch name {
	case "none":
		return AlgorithmNone, nil
	case "lz4":
		return AlgorithmLZ4, nil
	case "zstd", "":
		return AlgorithmZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression algorithm: %q", name)
	}
}

// Codec compresses payloads with one configured algorithm and
// decompresses frames written with any algorithm. A Codec is safe for
// concurrent use.
type Codec struct {
	algorithm Algorithm
}

// New returns a Codec that compresses with algorithm.
func New(algorithm Algorithm) (*Codec, error) {
	switch algorithm {
	case AlgorithmNone, AlgorithmLZ4, AlgorithmZstd:
		return &Codec{algorithm: algorithm}, nil
	default:
		return nil, fmt.Errorf("compress: unsupported algorithm %s", algorithm)
	}
}

// Default returns a zstd Codec.
func Default() *Codec {
	return &Codec{algorithm: AlgorithmZstd}
}

// Algorithm returns the algorithm used for compression.
func (c *Codec) Algorithm() Algorithm {
	return c.algorithm
}

// Compress returns a frame holding data. The result always
// decompresses to data; it is not guaranteed to be byte-identical
// across calls or library versions.
func (c *Codec) Compress(data []byte) ([]byte, error) {
	algorithm := c.algorithm
	payload := data

	if len(data) > 0 && algorithm != AlgorithmNone {
		compressed, err := compressWith(algorithm, data)
		switch {
		case err == errIncompressible:
			algorithm = AlgorithmNone
		case err != nil:
			return nil, fmt.Errorf("compress: %s: %w", algorithm, err)
		default:
			payload = compressed
		}
	} else {
		algorithm = AlgorithmNone
	}

	checksum := blake3.Sum256(data)

	frame := make([]byte, 0, 2+binary.MaxVarintLen64+checksumLength+len(payload))
	frame = append(frame, frameMagic, byte(algorithm))
	frame = binary.AppendUvarint(frame, uint64(len(data)))
	frame = append(frame, checksum[:checksumLength]...)
	frame = append(frame, payload...)
	return frame, nil
}

// Decompress returns the original bytes of a frame produced by
// Compress. Any malformed, truncated, or tampered frame fails with an
// error wrapping contextentry.ErrCorruptPayload.
func (c *Codec) Decompress(frame []byte) ([]byte, error) {
	if len(frame) < 2 {
		return nil, corrupt("frame too short (%d bytes)", len(frame))
	}
	if frame[0] != frameMagic {
		return nil, corrupt("bad magic byte 0x%02x", frame[0])
	}
	algorithm := Algorithm(frame[1])

	rawLength, headerLength := binary.Uvarint(frame[2:])
	if headerLength <= 0 {
		return nil, corrupt("unreadable length header")
	}
	if rawLength > maxRawLength {
		return nil, corrupt("declared length %d exceeds limit", rawLength)
	}
	offset := 2 + headerLength
	if len(frame) < offset+checksumLength {
		return nil, corrupt("frame truncated before checksum")
	}
	expectedChecksum := frame[offset : offset+checksumLength]
	payload := frame[offset+checksumLength:]

	var data []byte
	var err error
	switch algorithm {
	case AlgorithmNone:
		if uint64(len(payload)) != rawLength {
			return nil, corrupt("stored payload is %d bytes, header says %d", len(payload), rawLength)
		}
		data = bytes.Clone(payload)
		if data == nil {
			data = []byte{}
		}
	case AlgorithmLZ4:
		data, err = decompressLZ4(payload, int(rawLength))
	case AlgorithmZstd:
		data, err = decompressZstd(payload, int(rawLength))
	default:
		return nil, corrupt("unknown algorithm tag %d", uint8(algorithm))
	}
	if err != nil {
		return nil, corrupt("%s: %v", algorithm, err)
	}

	checksum := blake3.Sum256(data)
	if !bytes.Equal(checksum[:checksumLength], expectedChecksum) {
		return nil, corrupt("checksum mismatch")
	}
	return data, nil
}

// IsFrame reports whether data starts like a compressed frame. It is a
// cheap sniff, not a validation.
func IsFrame(data []byte) bool {
	return len(data) >= 2+1+checksumLength && data[0] == frameMagic
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", contextentry.ErrCorruptPayload, fmt.Sprintf(format, args...))
}

func compressWith(algorithm Algorithm, data []byte) ([]byte, error) {
	switch algorithm {
	case AlgorithmLZ4:
		return compressLZ4(data)
	case AlgorithmZstd:
		return compressZstd(data)
	default:
		return nil, fmt.Errorf("unsupported algorithm %s", algorithm)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))

	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, err
	}
	// CompressBlock returns 0 for incompressible input.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func decompressLZ4(compressed []byte, rawLength int) ([]byte, error) {
	// LZ4 cannot expand a block by more than 255x.
	if rawLength > len(compressed)*255+1024 {
		return nil, fmt.Errorf("declared length %d impossible for %d-byte block", rawLength, len(compressed))
	}
	destination := make([]byte, rawLength)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, err
	}
	if read != rawLength {
		return nil, fmt.Errorf("got %d bytes, expected %d", read, rawLength)
	}
	return destination, nil
}

// zstd.Encoder and zstd.Decoder are safe for concurrent use through
// EncodeAll and DecodeAll.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("compress: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil,
		zstd.WithDecoderMaxMemory(maxRawLength),
	)
	if err != nil {
		panic("compress: zstd decoder initialization failed: " + err.Error())
	}
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(compressed []byte, rawLength int) ([]byte, error) {
	result, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, min(rawLength, zstdPreallocateLimit)))
	if err != nil {
		return nil, err
	}
	if len(result) != rawLength {
		return nil, fmt.Errorf("got %d bytes, expected %d", len(result), rawLength)
	}
	return result, nil
}

const zstdPreallocateLimit = 16 << 20

// errIncompressible means the algorithm output was not smaller than
// its input; Compress falls back to AlgorithmNone.
var errIncompressible = fmt.Errorf("data is incompressible")
