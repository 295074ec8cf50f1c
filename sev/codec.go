// SPDX-License-Identifier: Apache-2.0

package sev

import (
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Shared CBOR modes. Encoding is deterministic (definite lengths, struct
// fields in declaration order); decoding rejects duplicate map keys so an
// envelope cannot smuggle two payloads under one tag.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.EncOptions{Sort: cbor.SortNone}.EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{DupMapKey: cbor.DupMapKeyEnforcedAPF}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Blob is an opaque byte sequence owned by its containing message. On the
// wire it is an array of unsigned byte values rather than a CBOR byte
// string; the protocol trades compactness for introspectability under
// generic codecs. Decoding additionally accepts the byte-string form
// emitted by implementations that compacted it.
type Blob []byte

// MarshalCBOR implements cbor.Marshaler.
func (b Blob) MarshalCBOR() ([]byte, error) {
	vals := make([]uint16, len(b))
	for i, v := range b {
		vals[i] = uint16(v)
	}
	return encMode.Marshal(vals)
}

// UnmarshalCBOR implements cbor.Unmarshaler. Null decodes to a nil Blob;
// an empty array decodes to an empty one, keeping the two eras distinct
// across round trips.
func (b *Blob) UnmarshalCBOR(data []byte) error {
	if len(data) == 1 && (data[0] == 0xf6 || data[0] == 0xf7) { // null, undefined
		*b = nil
		return nil
	}
	var vals []uint64
	if err := decMode.Unmarshal(data, &vals); err == nil {
		out := make([]byte, len(vals))
		for i, v := range vals {
			if v > 0xff {
				return fmt.Errorf("blob value %d at index %d overflows a byte", v, i)
			}
			out[i] = byte(v)
		}
		*b = out
		return nil
	}
	var bs []byte
	if err := decMode.Unmarshal(data, &bs); err != nil {
		return fmt.Errorf("blob must be a byte array: %w", err)
	}
	*b = bs
	return nil
}

// Clone returns an independent copy of the blob, preserving nilness.
func (b Blob) Clone() Blob {
	if b == nil {
		return nil
	}
	out := make(Blob, len(b))
	copy(out, b)
	return out
}

var (
	chainFields       = []string{"ark", "ask", "oca", "cek", "pek", "pdh"}
	launchStartFields = []string{"policy", "cert", "session"}
	measurementFields = []string{"build", "measurement"}
)

// decodeFields decodes a fixed-name payload map, requiring exactly the
// named fields: absent or extra fields are an error, not ignored.
func decodeFields(data []byte, want []string) (map[string]cbor.RawMessage, error) {
	var fields map[string]cbor.RawMessage
	if err := decMode.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, errors.New("payload is not a map")
	}
	for _, name := range want {
		if _, ok := fields[name]; !ok {
			return nil, fmt.Errorf("missing field %q", name)
		}
	}
	if len(fields) != len(want) {
		return nil, fmt.Errorf("payload has %d fields, expected %d", len(fields), len(want))
	}
	return fields, nil
}

// MarshalCBOR implements cbor.Marshaler.
func (c Chain) MarshalCBOR() ([]byte, error) {
	return encMode.Marshal(struct {
		Ark Blob `cbor:"ark"`
		Ask Blob `cbor:"ask"`
		Oca Blob `cbor:"oca"`
		Cek Blob `cbor:"cek"`
		Pek Blob `cbor:"pek"`
		Pdh Blob `cbor:"pdh"`
	}{c.Ark, c.Ask, c.Oca, c.Cek, c.Pek, c.Pdh})
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (c *Chain) UnmarshalCBOR(data []byte) error {
	fields, err := decodeFields(data, chainFields)
	if err != nil {
		return err
	}
	for name, dst := range map[string]*Blob{
		"ark": &c.Ark, "ask": &c.Ask, "oca": &c.Oca,
		"cek": &c.Cek, "pek": &c.Pek, "pdh": &c.Pdh,
	} {
		if err := dst.UnmarshalCBOR(fields[name]); err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
	}
	return nil
}

// MarshalCBOR implements cbor.Marshaler.
func (ls LaunchStart) MarshalCBOR() ([]byte, error) {
	return encMode.Marshal(struct {
		Policy  Blob `cbor:"policy"`
		Cert    Blob `cbor:"cert"`
		Session Blob `cbor:"session"`
	}{ls.Policy, ls.Cert, ls.Session})
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (ls *LaunchStart) UnmarshalCBOR(data []byte) error {
	fields, err := decodeFields(data, launchStartFields)
	if err != nil {
		return err
	}
	for name, dst := range map[string]*Blob{
		"policy": &ls.Policy, "cert": &ls.Cert, "session": &ls.Session,
	} {
		if err := dst.UnmarshalCBOR(fields[name]); err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
	}
	return nil
}

// MarshalCBOR implements cbor.Marshaler.
func (m Measurement) MarshalCBOR() ([]byte, error) {
	return encMode.Marshal(struct {
		Build       Blob `cbor:"build"`
		Measurement Blob `cbor:"measurement"`
	}{m.Build, m.Measurement})
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (m *Measurement) UnmarshalCBOR(data []byte) error {
	fields, err := decodeFields(data, measurementFields)
	if err != nil {
		return err
	}
	for name, dst := range map[string]*Blob{
		"build": &m.Build, "measurement": &m.Measurement,
	} {
		if err := dst.UnmarshalCBOR(fields[name]); err != nil {
			return fmt.Errorf("field %q: %w", name, err)
		}
	}
	return nil
}

// MarshalCBOR implements cbor.Marshaler. An absent secret encodes as
// null (the early protocol revision); a present one, even if empty,
// encodes as a byte array. Both forms round-trip exactly.
func (s Secret) MarshalCBOR() ([]byte, error) {
	if s.Data == nil {
		return encMode.Marshal(nil)
	}
	return s.Data.MarshalCBOR()
}

// UnmarshalCBOR implements cbor.Unmarshaler, accepting both eras.
func (s *Secret) UnmarshalCBOR(data []byte) error {
	var b Blob
	if err := b.UnmarshalCBOR(data); err != nil {
		return err
	}
	s.Data = b
	return nil
}

// MarshalCBOR implements cbor.Marshaler. Finish is a unit value and
// encodes as null.
func (Finish) MarshalCBOR() ([]byte, error) {
	return encMode.Marshal(nil)
}

// UnmarshalCBOR implements cbor.Unmarshaler, accepting null or an empty
// map as permitted by the two protocol revisions.
func (*Finish) UnmarshalCBOR(data []byte) error {
	var fields map[string]cbor.RawMessage
	if err := decMode.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("finish payload must be null or an empty map: %w", err)
	}
	if len(fields) != 0 {
		return fmt.Errorf("finish payload has %d unexpected fields", len(fields))
	}
	return nil
}

// Marshal encodes a message into its envelope representation: a CBOR map
// with exactly one key, the variant tag, mapped to the variant payload.
func Marshal(msg Message) ([]byte, error) {
	tag := msg.Type().Tag()
	if tag == "" {
		return nil, UnknownVariantError(msg.Type().String())
	}
	payload, err := encMode.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("sev: encoding %s payload: %w", msg.Type(), err)
	}
	return encMode.Marshal(map[string]cbor.RawMessage{tag: payload})
}

// Unmarshal decodes a message from its envelope representation. The
// returned error is ErrTruncatedInput, ErrMalformedEnvelope, an
// UnknownVariantError, or a ShapeError.
func Unmarshal(data []byte) (Message, error) {
	var env map[string]cbor.RawMessage
	if err := decMode.Unmarshal(data, &env); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %v", ErrTruncatedInput, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if len(env) != 1 {
		return nil, fmt.Errorf("%w: %d keys, expected exactly one variant tag",
			ErrMalformedEnvelope, len(env))
	}
	for tag, payload := range env {
		typ := TypeOfTag(tag)
		if typ == UnknownType {
			return nil, UnknownVariantError(tag)
		}
		return decodePayload(typ, payload)
	}
	panic("unreachable")
}

// decodePayload decodes a variant payload already separated from its tag.
func decodePayload(typ Type, payload []byte) (Message, error) {
	var msg Message
	var err error
	switch typ {
	case CertificateChainNaplesType:
		var m CertificateChainNaples
		err = m.Chain.UnmarshalCBOR(payload)
		msg = m
	case CertificateChainRomeType:
		var m CertificateChainRome
		err = m.Chain.UnmarshalCBOR(payload)
		msg = m
	case LaunchStartType:
		var m LaunchStart
		err = m.UnmarshalCBOR(payload)
		msg = m
	case MeasurementType:
		var m Measurement
		err = m.UnmarshalCBOR(payload)
		msg = m
	case SecretType:
		var m Secret
		err = m.UnmarshalCBOR(payload)
		msg = m
	case FinishType:
		var m Finish
		err = m.UnmarshalCBOR(payload)
		msg = m
	default:
		return nil, UnknownVariantError(typ.String())
	}
	if err != nil {
		return nil, &ShapeError{Variant: typ, Err: err}
	}
	return msg, nil
}
