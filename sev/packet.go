// SPDX-License-Identifier: Apache-2.0

package sev

import (
	"errors"
	"fmt"
	"io"
)

// mimePrefix prefixes every packet mimetype; the suffix is the variant's
// wire tag.
const mimePrefix = "application/vnd.enarx.sev."

// Mimetype returns the packet-representation mimetype for the message
// type, or an empty string for an unknown type.
func (t Type) Mimetype() string {
	tag := t.Tag()
	if tag == "" {
		return ""
	}
	return mimePrefix + tag
}

// TypeOfMimetype returns the message type named by a packet mimetype, or
// UnknownType.
func TypeOfMimetype(mimetype string) Type {
	if len(mimetype) <= len(mimePrefix) || mimetype[:len(mimePrefix)] != mimePrefix {
		return UnknownType
	}
	return TypeOfTag(mimetype[len(mimePrefix):])
}

// Packet is the flat message representation of the later protocol
// revision: a mimetype naming the payload's shape and the payload itself
// as one opaque blob. How the blob is encoded is ambiguous between the
// structured encoding and the platform's raw memory layout; Resolve
// applies the fixed disambiguation policy.
type Packet struct {
	Mimetype string
	Payload  []byte
}

// NewPacket converts a message to its packet representation. The payload
// always uses the structured encoding.
func NewPacket(msg Message) (*Packet, error) {
	mt := msg.Type().Mimetype()
	if mt == "" {
		return nil, UnknownVariantError(msg.Type().String())
	}
	payload, err := encMode.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("sev: encoding %s payload: %w", msg.Type(), err)
	}
	return &Packet{Mimetype: mt, Payload: payload}, nil
}

// MarshalCBOR implements cbor.Marshaler.
func (p Packet) MarshalCBOR() ([]byte, error) {
	return encMode.Marshal(struct {
		Mimetype string `cbor:"mimetype"`
		Payload  []byte `cbor:"payload"`
	}{p.Mimetype, p.Payload})
}

// UnmarshalCBOR implements cbor.Unmarshaler. Exactly the mimetype and
// payload fields must be present.
func (p *Packet) UnmarshalCBOR(data []byte) error {
	fields, err := decodeFields(data, []string{"mimetype", "payload"})
	if err != nil {
		return err
	}
	if err := decMode.Unmarshal(fields["mimetype"], &p.Mimetype); err != nil {
		return fmt.Errorf("field %q: %w", "mimetype", err)
	}
	var payload Blob
	if err := payload.UnmarshalCBOR(fields["payload"]); err != nil {
		return fmt.Errorf("field %q: %w", "payload", err)
	}
	p.Payload = payload
	return nil
}

// MarshalPacket encodes a packet to CBOR.
func MarshalPacket(p *Packet) ([]byte, error) {
	return encMode.Marshal(p)
}

// UnmarshalPacket decodes a packet from CBOR. The payload is not
// resolved; call Resolve on the result.
func UnmarshalPacket(data []byte) (*Packet, error) {
	var p Packet
	if err := decMode.Unmarshal(data, &p); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %v", ErrTruncatedInput, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return &p, nil
}

// Resolve interprets the packet payload as the message its mimetype
// names. The structured decode is attempted first; only if it fails is
// the payload read as the platform's raw memory layout. The order is
// fixed: a blob that happens to satisfy both interpretations must
// resolve to the structured one. Container shapes (the envelope itself,
// measurement, finish) have no raw form and decode structured only.
//
// Note the residual ambiguity: nothing beyond the mimetype tags which
// encoding was used, so a raw blob that coincidentally parses as the
// structured shape is misread. The fallback order makes that the only
// permitted false-positive direction.
func (p *Packet) Resolve() (Message, error) {
	typ := TypeOfMimetype(p.Mimetype)
	if typ == UnknownType {
		return nil, UnknownVariantError(p.Mimetype)
	}
	msg, serr := decodePayload(typ, p.Payload)
	if serr == nil {
		return msg, nil
	}
	msg, rerr := decodeRaw(typ, p.Payload)
	if rerr == nil {
		return msg, nil
	}
	return nil, &ResolveError{Mimetype: p.Mimetype, Structured: serr, Raw: rerr}
}
