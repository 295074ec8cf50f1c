// SPDX-License-Identifier: Apache-2.0

package sev_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/go-cmp/cmp"

	"github.com/enarx-archive/koine/sev"
)

// rawFill builds a buffer of len(sizes) sections where section i is
// sizes[i] bytes of the value i+1, so splits can be checked per section.
func rawFill(sizes ...int) []byte {
	var buf []byte
	for i, n := range sizes {
		buf = append(buf, bytes.Repeat([]byte{byte(i + 1)}, n)...)
	}
	return buf
}

func TestPacketRoundTrip(t *testing.T) {
	for _, msg := range []sev.Message{
		sev.CertificateChainNaples{Chain: testChain()},
		sev.CertificateChainRome{Chain: testChain()},
		sev.LaunchStart{
			Policy:  sev.Blob{0x01, 0x00, 0x00, 0x00},
			Cert:    sev.Blob{0xaa, 0xbb, 0xcc},
			Session: sev.Blob{0xdd},
		},
		sev.Measurement{
			Build:       sev.Blob{0x17, 0x18},
			Measurement: sev.Blob{0xde, 0xad, 0xbe, 0xef},
		},
		sev.Secret{Data: sev.Blob{1, 2, 3, 4}},
		sev.Secret{},
		sev.Finish{},
	} {
		t.Run(msg.Type().String(), func(t *testing.T) {
			pkt, err := sev.NewPacket(msg)
			if err != nil {
				t.Fatalf("error building packet: %v", err)
			}
			if want := msg.Type().Mimetype(); pkt.Mimetype != want {
				t.Errorf("mimetype %q, want %q", pkt.Mimetype, want)
			}
			data, err := sev.MarshalPacket(pkt)
			if err != nil {
				t.Fatalf("error marshaling packet: %v", err)
			}
			decoded, err := sev.UnmarshalPacket(data)
			if err != nil {
				t.Fatalf("error unmarshaling % x: %v", data, err)
			}
			resolved, err := decoded.Resolve()
			if err != nil {
				t.Fatalf("error resolving payload: %v", err)
			}
			if diff := cmp.Diff(msg, resolved); diff != "" {
				t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolveStructuredWins(t *testing.T) {
	// 84 01 02 03 04 is simultaneously a structured byte-value array and
	// five perfectly good raw secret bytes. The structured reading is the
	// contract.
	pkt := &sev.Packet{
		Mimetype: sev.SecretType.Mimetype(),
		Payload:  []byte{0x84, 0x01, 0x02, 0x03, 0x04},
	}
	msg, err := pkt.Resolve()
	if err != nil {
		t.Fatalf("error resolving payload: %v", err)
	}
	s, ok := msg.(sev.Secret)
	if !ok {
		t.Fatalf("expected secret, got %s", msg.Type())
	}
	if !bytes.Equal(s.Data, []byte{1, 2, 3, 4}) {
		t.Fatalf("expected structured data 01020304, got % x", s.Data)
	}
}

func TestResolveRawSecret(t *testing.T) {
	// Not a complete CBOR item, so the structured decode fails and the
	// whole payload becomes the secret.
	payload := []byte{0x01, 0x02, 0x03}
	pkt := &sev.Packet{Mimetype: sev.SecretType.Mimetype(), Payload: payload}
	msg, err := pkt.Resolve()
	if err != nil {
		t.Fatalf("error resolving payload: %v", err)
	}
	s, ok := msg.(sev.Secret)
	if !ok {
		t.Fatalf("expected secret, got %s", msg.Type())
	}
	if !bytes.Equal(s.Data, payload) {
		t.Fatalf("expected raw data % x, got % x", payload, s.Data)
	}
}

func TestResolveRawChain(t *testing.T) {
	for _, test := range []struct {
		typ       sev.Type
		caCertLen int
	}{
		{typ: sev.CertificateChainNaplesType, caCertLen: sev.NaplesCACertLen},
		{typ: sev.CertificateChainRomeType, caCertLen: sev.RomeCACertLen},
	} {
		t.Run(test.typ.String(), func(t *testing.T) {
			payload := rawFill(
				sev.SEVCertLen, sev.SEVCertLen, sev.SEVCertLen, sev.SEVCertLen,
				test.caCertLen, test.caCertLen,
			)
			pkt := &sev.Packet{Mimetype: test.typ.Mimetype(), Payload: payload}
			msg, err := pkt.Resolve()
			if err != nil {
				t.Fatalf("error resolving payload: %v", err)
			}
			var chain sev.Chain
			switch m := msg.(type) {
			case sev.CertificateChainNaples:
				chain = m.Chain
			case sev.CertificateChainRome:
				chain = m.Chain
			default:
				t.Fatalf("expected a certificate chain, got %s", msg.Type())
			}
			// Leaf to root: PDH, PEK, OCA, CEK, then ASK, ARK.
			for _, part := range []struct {
				name string
				blob sev.Blob
				size int
				fill byte
			}{
				{name: "pdh", blob: chain.Pdh, size: sev.SEVCertLen, fill: 1},
				{name: "pek", blob: chain.Pek, size: sev.SEVCertLen, fill: 2},
				{name: "oca", blob: chain.Oca, size: sev.SEVCertLen, fill: 3},
				{name: "cek", blob: chain.Cek, size: sev.SEVCertLen, fill: 4},
				{name: "ask", blob: chain.Ask, size: test.caCertLen, fill: 5},
				{name: "ark", blob: chain.Ark, size: test.caCertLen, fill: 6},
			} {
				if !bytes.Equal(part.blob, bytes.Repeat([]byte{part.fill}, part.size)) {
					t.Errorf("%s: wrong bytes or size %d", part.name, len(part.blob))
				}
			}
		})
	}
}

func TestResolveRawLaunchStart(t *testing.T) {
	payload := rawFill(sev.LaunchPolicyLen, sev.SEVCertLen, sev.LaunchSessionLen)
	pkt := &sev.Packet{Mimetype: sev.LaunchStartType.Mimetype(), Payload: payload}
	msg, err := pkt.Resolve()
	if err != nil {
		t.Fatalf("error resolving payload: %v", err)
	}
	ls, ok := msg.(sev.LaunchStart)
	if !ok {
		t.Fatalf("expected launch start, got %s", msg.Type())
	}
	if !bytes.Equal(ls.Policy, bytes.Repeat([]byte{1}, sev.LaunchPolicyLen)) {
		t.Errorf("wrong policy bytes: % x", ls.Policy)
	}
	if !bytes.Equal(ls.Cert, bytes.Repeat([]byte{2}, sev.SEVCertLen)) {
		t.Errorf("wrong cert bytes or size %d", len(ls.Cert))
	}
	if !bytes.Equal(ls.Session, bytes.Repeat([]byte{3}, sev.LaunchSessionLen)) {
		t.Errorf("wrong session bytes or size %d", len(ls.Session))
	}
}

func TestResolveErrors(t *testing.T) {
	junk := []byte{0x01, 0x02, 0x03} // fails every structured decode

	t.Run("wrong size raw chain", func(t *testing.T) {
		pkt := &sev.Packet{Mimetype: sev.CertificateChainNaplesType.Mimetype(), Payload: junk}
		_, err := pkt.Resolve()
		if !errors.Is(err, sev.ErrAmbiguousPayload) {
			t.Fatalf("expected unresolvable payload, got %v", err)
		}
		var resolveErr *sev.ResolveError
		if !errors.As(err, &resolveErr) {
			t.Fatalf("expected resolve error, got %v", err)
		}
		if resolveErr.Structured == nil || resolveErr.Raw == nil {
			t.Error("resolve error must carry both decode failures")
		}
	})

	t.Run("measurement has no raw form", func(t *testing.T) {
		pkt := &sev.Packet{Mimetype: sev.MeasurementType.Mimetype(), Payload: junk}
		if _, err := pkt.Resolve(); !errors.Is(err, sev.ErrAmbiguousPayload) {
			t.Fatalf("expected unresolvable payload, got %v", err)
		}
	})

	t.Run("finish has no raw form", func(t *testing.T) {
		pkt := &sev.Packet{Mimetype: sev.FinishType.Mimetype(), Payload: junk}
		if _, err := pkt.Resolve(); !errors.Is(err, sev.ErrAmbiguousPayload) {
			t.Fatalf("expected unresolvable payload, got %v", err)
		}
	})

	t.Run("unknown mimetype", func(t *testing.T) {
		pkt := &sev.Packet{Mimetype: "application/octet-stream", Payload: junk}
		_, err := pkt.Resolve()
		var unknownErr sev.UnknownVariantError
		if !errors.As(err, &unknownErr) {
			t.Fatalf("expected unknown variant error, got %v", err)
		}
	})
}

func TestPacketDecodeErrors(t *testing.T) {
	t.Run("missing payload field", func(t *testing.T) {
		data, err := cbor.Marshal(map[string]any{"mimetype": sev.FinishType.Mimetype()})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := sev.UnmarshalPacket(data); !errors.Is(err, sev.ErrMalformedEnvelope) {
			t.Fatalf("expected malformed envelope, got %v", err)
		}
	})

	t.Run("extra field", func(t *testing.T) {
		data, err := cbor.Marshal(map[string]any{
			"mimetype": sev.FinishType.Mimetype(),
			"payload":  []byte{0xf6},
			"version":  2,
		})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := sev.UnmarshalPacket(data); !errors.Is(err, sev.ErrMalformedEnvelope) {
			t.Fatalf("expected malformed envelope, got %v", err)
		}
	})

	t.Run("truncated", func(t *testing.T) {
		pkt, err := sev.NewPacket(sev.Secret{Data: sev.Blob{1, 2, 3, 4}})
		if err != nil {
			t.Fatal(err)
		}
		data, err := sev.MarshalPacket(pkt)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := sev.UnmarshalPacket(data[:len(data)-3]); !errors.Is(err, sev.ErrTruncatedInput) {
			t.Fatalf("expected truncated input, got %v", err)
		}
	})

	t.Run("payload as byte values", func(t *testing.T) {
		// Some encoders emit the payload as an array of byte values
		// instead of a byte string; the decoder takes both.
		data, err := cbor.Marshal(map[string]any{
			"mimetype": sev.SecretType.Mimetype(),
			"payload":  []uint16{0x84, 1, 2, 3, 4},
		})
		if err != nil {
			t.Fatal(err)
		}
		pkt, err := sev.UnmarshalPacket(data)
		if err != nil {
			t.Fatalf("error unmarshaling: %v", err)
		}
		if !bytes.Equal(pkt.Payload, []byte{0x84, 1, 2, 3, 4}) {
			t.Fatalf("expected payload 8401020304, got % x", pkt.Payload)
		}
	})
}

func TestMimetypes(t *testing.T) {
	for _, typ := range []sev.Type{
		sev.CertificateChainNaplesType,
		sev.CertificateChainRomeType,
		sev.LaunchStartType,
		sev.MeasurementType,
		sev.SecretType,
		sev.FinishType,
	} {
		mt := typ.Mimetype()
		if want := "application/vnd.enarx.sev." + typ.Tag(); mt != want {
			t.Errorf("mimetype for %s: expected %q, got %q", typ, want, mt)
		}
		if got := sev.TypeOfMimetype(mt); got != typ {
			t.Errorf("type of %q: expected %v, got %v", mt, typ, got)
		}
	}
	for _, mt := range []string{
		"",
		"application/cbor",
		"application/vnd.enarx.sev.",
		"application/vnd.enarx.sev.bogus",
	} {
		if got := sev.TypeOfMimetype(mt); got != sev.UnknownType {
			t.Errorf("type of %q: expected unknown, got %v", mt, got)
		}
	}
}
