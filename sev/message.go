// SPDX-License-Identifier: Apache-2.0

package sev

// Type discriminates the six attestation message kinds.
type Type uint8

// Message type enumeration values
const (
	UnknownType Type = iota
	CertificateChainNaplesType
	CertificateChainRomeType
	LaunchStartType
	MeasurementType
	SecretType
	FinishType
)

// Wire tags are fixed ASCII strings shared by every conforming
// implementation and must not change.
const (
	certificateChainNaplesTag = "certificate-chain-naples"
	certificateChainRomeTag   = "certificate-chain-rome"
	launchStartTag            = "launch-start"
	measurementTag            = "measurement"
	secretTag                 = "secret"
	finishTag                 = "finish"
)

// Tag returns the lowercase-hyphenated wire tag for the message type, or
// an empty string for an unknown type.
func (t Type) Tag() string {
	switch t {
	case CertificateChainNaplesType:
		return certificateChainNaplesTag
	case CertificateChainRomeType:
		return certificateChainRomeTag
	case LaunchStartType:
		return launchStartTag
	case MeasurementType:
		return measurementTag
	case SecretType:
		return secretTag
	case FinishType:
		return finishTag
	default:
		return ""
	}
}

// String implements Stringer.
func (t Type) String() string {
	if tag := t.Tag(); tag != "" {
		return tag
	}
	return "unknown"
}

// TypeOfTag returns the message type named by a wire tag, or UnknownType.
func TypeOfTag(tag string) Type {
	switch tag {
	case certificateChainNaplesTag:
		return CertificateChainNaplesType
	case certificateChainRomeTag:
		return CertificateChainRomeType
	case launchStartTag:
		return LaunchStartType
	case measurementTag:
		return MeasurementType
	case secretTag:
		return SecretType
	case finishTag:
		return FinishType
	default:
		return UnknownType
	}
}

// Message is one attestation protocol message. It is a closed set: the
// only implementations are the six payload types in this package.
//
// Messages are immutable value objects. They are constructed, sent, and
// discarded; no payload is shared between messages.
type Message interface {
	// Type returns the message's wire discriminator.
	Type() Type

	message() // closes the interface
}

// Chain is the SEV platform certificate chain: six independently owned
// blobs laid out per the AMD SEV API specification. The codec transports
// them verbatim; it does not check component sizes, so the same Chain may
// travel under either the Naples or the Rome tag. Distinguishing the two
// generations is the validator's job.
type Chain struct {
	// ARK is the AMD root key certificate.
	Ark Blob
	// ASK is the AMD SEV signing key certificate.
	Ask Blob
	// OCA is the owner certificate authority certificate.
	Oca Blob
	// CEK is the chip endorsement key certificate.
	Cek Blob
	// PEK is the platform endorsement key certificate.
	Pek Blob
	// PDH is the platform Diffie-Hellman key certificate.
	Pdh Blob
}

// CertificateChainNaples carries a Chain whose ARK and ASK are "small" CA
// certificates (256 byte components).
type CertificateChainNaples struct{ Chain }

// Type implements Message.
func (CertificateChainNaples) Type() Type { return CertificateChainNaplesType }

func (CertificateChainNaples) message() {}

// CertificateChainRome carries a Chain whose ARK and ASK are "large" CA
// certificates (512 byte components).
type CertificateChainRome struct{ Chain }

// Type implements Message.
func (CertificateChainRome) Type() Type { return CertificateChainRomeType }

func (CertificateChainRome) message() {}

// LaunchStart carries the session-establishment parameters the tenant has
// tailored to its expectations for the secure VM.
type LaunchStart struct {
	// Policy is the guest policy blob.
	Policy Blob
	// Cert is the guest owner's Diffie-Hellman certificate.
	Cert Blob
	// Session is the launch session buffer (nonce and wrapped keys).
	Session Blob
}

// Type implements Message.
func (LaunchStart) Type() Type { return LaunchStartType }

func (LaunchStart) message() {}

// Measurement carries the secure processor's build descriptor and launch
// measurement so the tenant may decide whether the environment is correct.
type Measurement struct {
	// Build describes the platform firmware build.
	Build Blob
	// Measurement is the launch digest over the initial guest state.
	Measurement Blob
}

// Type implements Message.
func (Measurement) Type() Type { return MeasurementType }

func (Measurement) message() {}

// Secret carries the secret to inject into the secure VM. A nil Data
// means no secret is being sent; it encodes as CBOR null, matching the
// early protocol revision, while any non-nil Data (including an empty
// one) encodes as a byte array. Decoders accept both eras.
type Secret struct {
	Data Blob
}

// Type implements Message.
func (Secret) Type() Type { return SecretType }

func (Secret) message() {}

// Finish signals a successful attestation and launch. It carries no data;
// it encodes as CBOR null and decodes from null or an empty map.
type Finish struct{}

// Type implements Message.
func (Finish) Type() Type { return FinishType }

func (Finish) message() {}
