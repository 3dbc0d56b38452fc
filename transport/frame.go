// Copyright 2026 The Fuzzfleet Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"

	"github.com/fuzzfleet/fuzzfleet/lib/codec"
	"github.com/fuzzfleet/fuzzfleet/monitor"
)

// frameKind discriminates the messages on a broker connection.
type frameKind uint8

const (
	// frameHello is the first frame a worker sends: its tag and core.
	frameHello frameKind = iota + 1

	// frameWelcome is the broker's reply to a hello, assigning the
	// peer its client id.
	frameWelcome

	// frameStats carries a worker's aggregate counters to the broker.
	frameStats

	// frameEvent carries an opaque finding payload. The broker relays
	// it to every other peer with a matching tag.
	frameEvent

	// frameBye announces a clean detach. The peer counts toward the
	// broker's disconnect quota either way; bye just distinguishes
	// clean exits in the logs.
	frameBye

	// frameBrokerHello is the first frame a first-tier broker sends
	// when attaching to a centralized or remote broker.
	frameBrokerHello
)

// frame is the single wire message type. Optional fields are set per
// kind; the payload stays raw CBOR so brokers relay without decoding.
type frame struct {
	Kind    frameKind            `cbor:"kind"`
	Tag     Tag                  `cbor:"tag"`
	Client  uint32               `cbor:"client,omitempty"`
	Core    int                  `cbor:"core,omitempty"`
	Main    bool                 `cbor:"main,omitempty"`
	Stats   *monitor.ClientStats `cbor:"stats,omitempty"`
	Payload codec.RawMessage     `cbor:"payload,omitempty"`
}

// Framing: a 9-byte header (1 flag byte, 4-byte big-endian stored
// length, 4-byte big-endian raw length) followed by the body. Bodies
// at or above compressThreshold are lz4 block-compressed; tiny frames
// are not worth the round trip.
const (
	flagRaw byte = 0
	flagLZ4 byte = 1

	headerSize        = 9
	compressThreshold = 1024

	// maxFrameSize bounds a single frame so a corrupt length prefix
	// cannot make a reader allocate gigabytes.
	maxFrameSize = 64 << 20
)

// writeFrame encodes f and writes one framed message to w.
func writeFrame(w io.Writer, f *frame) error {
	body, err := codec.Marshal(f)
	if err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}
	// Same cap as readFrame: a frame the peer is bound to reject must
	// not leave this side either.
	if len(body) > maxFrameSize {
		return fmt.Errorf("frame size %d exceeds limit", len(body))
	}

	flag := flagRaw
	stored := body
	if len(body) >= compressThreshold {
		compressed := make([]byte, lz4.CompressBlockBound(len(body)))
		n, err := lz4.CompressBlock(body, compressed, nil)
		if err != nil {
			return fmt.Errorf("compressing frame: %w", err)
		}
		// CompressBlock reports 0 for incompressible input; send raw.
		if n > 0 && n < len(body) {
			flag = flagLZ4
			stored = compressed[:n]
		}
	}

	header := make([]byte, headerSize)
	header[0] = flag
	binary.BigEndian.PutUint32(header[1:5], uint32(len(stored)))
	binary.BigEndian.PutUint32(header[5:9], uint32(len(body)))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("writing frame header: %w", err)
	}
	if _, err := w.Write(stored); err != nil {
		return fmt.Errorf("writing frame body: %w", err)
	}
	return nil
}

// readFrame reads one framed message from r. io.EOF at a frame
// boundary is returned as-is so callers can treat it as a disconnect.
func readFrame(r io.Reader) (*frame, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("reading frame header: %w", err)
	}

	flag := header[0]
	storedLen := binary.BigEndian.Uint32(header[1:5])
	rawLen := binary.BigEndian.Uint32(header[5:9])
	if storedLen > maxFrameSize || rawLen > maxFrameSize {
		return nil, fmt.Errorf("frame length %d/%d exceeds limit", storedLen, rawLen)
	}

	stored := make([]byte, storedLen)
	if _, err := io.ReadFull(r, stored); err != nil {
		return nil, fmt.Errorf("reading frame body: %w", err)
	}

	body := stored
	switch flag {
	case flagRaw:
	case flagLZ4:
		body = make([]byte, rawLen)
		n, err := lz4.UncompressBlock(stored, body)
		if err != nil {
			return nil, fmt.Errorf("decompressing frame: %w", err)
		}
		body = body[:n]
	default:
		return nil, fmt.Errorf("unknown frame flag %d", flag)
	}

	var decoded frame
	if err := codec.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}
	return &decoded, nil
}
