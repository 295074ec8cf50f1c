// SPDX-License-Identifier: Apache-2.0

package koine

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/enarx-archive/koine/sev"
)

// Transport moves whole attestation messages over an established,
// reliable, ordered channel. Connection lifecycle and retry policy are
// the transport's concern; message ordering rules are the Sequencer's.
type Transport interface {
	// Send writes one message.
	Send(ctx context.Context, msg sev.Message) error

	// Receive blocks for the next message.
	Receive(ctx context.Context) (sev.Message, error)

	// Close releases the underlying channel.
	Close() error
}

// Framing selects which wire representation a StreamTransport speaks.
type Framing uint8

// Framing values
const (
	// EnvelopeFraming frames messages in the tagged-envelope
	// representation.
	EnvelopeFraming Framing = iota
	// PacketFraming frames messages in the mimetype/payload packet
	// representation, resolving payloads on receive.
	PacketFraming
)

// String implements Stringer.
func (f Framing) String() string {
	switch f {
	case EnvelopeFraming:
		return "envelope"
	case PacketFraming:
		return "packet"
	default:
		return "unknown"
	}
}

// maxFrameLen bounds a single message frame. The largest legitimate
// message is a Rome certificate chain, well under this.
const maxFrameLen = 1 << 20

// StreamTransport frames messages on a byte stream with a big-endian
// uint32 length prefix. Both peers must use the same framing.
type StreamTransport struct {
	rw      io.ReadWriteCloser
	framing Framing

	wmu sync.Mutex
	rmu sync.Mutex
}

// NewStreamTransport wraps a stream, e.g. a net.Conn.
func NewStreamTransport(rw io.ReadWriteCloser, framing Framing) *StreamTransport {
	return &StreamTransport{rw: rw, framing: framing}
}

// Send implements Transport.
func (t *StreamTransport) Send(ctx context.Context, msg sev.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var frame []byte
	var err error
	switch t.framing {
	case PacketFraming:
		var p *sev.Packet
		if p, err = sev.NewPacket(msg); err == nil {
			frame, err = sev.MarshalPacket(p)
		}
	default:
		frame, err = sev.Marshal(msg)
	}
	if err != nil {
		return err
	}
	if len(frame) > maxFrameLen {
		return fmt.Errorf("koine: %s message of %d bytes exceeds frame limit", msg.Type(), len(frame))
	}

	t.wmu.Lock()
	defer t.wmu.Unlock()
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(frame)))
	if _, err := t.rw.Write(prefix[:]); err != nil {
		return fmt.Errorf("koine: writing frame header: %w", err)
	}
	if _, err := t.rw.Write(frame); err != nil {
		return fmt.Errorf("koine: writing frame: %w", err)
	}
	return nil
}

// Receive implements Transport.
func (t *StreamTransport) Receive(ctx context.Context) (sev.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.rmu.Lock()
	defer t.rmu.Unlock()
	var prefix [4]byte
	if _, err := io.ReadFull(t.rw, prefix[:]); err != nil {
		return nil, fmt.Errorf("koine: reading frame header: %w", err)
	}
	length := binary.BigEndian.Uint32(prefix[:])
	if length > maxFrameLen {
		return nil, fmt.Errorf("koine: frame of %d bytes exceeds limit", length)
	}
	frame := make([]byte, length)
	if _, err := io.ReadFull(t.rw, frame); err != nil {
		return nil, fmt.Errorf("koine: reading frame: %w", err)
	}

	switch t.framing {
	case PacketFraming:
		p, err := sev.UnmarshalPacket(frame)
		if err != nil {
			return nil, err
		}
		return p.Resolve()
	default:
		return sev.Unmarshal(frame)
	}
}

// Close implements Transport.
func (t *StreamTransport) Close() error { return t.rw.Close() }
