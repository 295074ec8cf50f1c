// SPDX-License-Identifier: Apache-2.0

package sev

import "fmt"

// Fixed component sizes of the raw platform layouts, per the AMD SEV API
// specification (appendix B for CA certificates, appendix C for SEV
// certificates and the launch session buffer). Naples platforms sign with
// 2048-bit CA components, Rome with 4096-bit ones; everything else is the
// same size on both generations.
const (
	// SEVCertLen is the size of an SEV certificate (OCA, CEK, PEK, PDH).
	SEVCertLen = 2084
	// NaplesCACertLen is the size of a Naples AMD CA certificate (ARK, ASK).
	NaplesCACertLen = 840
	// RomeCACertLen is the size of a Rome AMD CA certificate (ARK, ASK).
	RomeCACertLen = 1608
	// LaunchPolicyLen is the size of the guest policy field.
	LaunchPolicyLen = 4
	// LaunchSessionLen is the size of the launch session buffer.
	LaunchSessionLen = 128
)

// decodeRaw reads a packet payload as the exact byte layout the platform
// produces. Container shapes never have a raw form.
func decodeRaw(typ Type, data []byte) (Message, error) {
	switch typ {
	case CertificateChainNaplesType:
		c, err := chainFromRaw(data, NaplesCACertLen)
		if err != nil {
			return nil, err
		}
		return CertificateChainNaples{c}, nil
	case CertificateChainRomeType:
		c, err := chainFromRaw(data, RomeCACertLen)
		if err != nil {
			return nil, err
		}
		return CertificateChainRome{c}, nil
	case LaunchStartType:
		ls, err := launchStartFromRaw(data)
		if err != nil {
			return nil, err
		}
		return ls, nil
	case SecretType:
		// The secret blob is opaque end to end; any byte sequence,
		// including an empty one, is a valid raw secret.
		return Secret{Data: append(Blob{}, data...)}, nil
	case MeasurementType, FinishType:
		return nil, fmt.Errorf("%s is a container shape and has no raw layout", typ)
	default:
		return nil, UnknownVariantError(typ.String())
	}
}

// chainFromRaw splits a concatenated certificate chain, leaf to root:
// PDH, PEK, OCA, CEK, then the CA pair ASK, ARK.
func chainFromRaw(data []byte, caCertLen int) (Chain, error) {
	want := 4*SEVCertLen + 2*caCertLen
	if len(data) != want {
		return Chain{}, fmt.Errorf("raw chain is %d bytes, expected %d", len(data), want)
	}
	next := func(n int) Blob {
		b := append(Blob{}, data[:n]...)
		data = data[n:]
		return b
	}
	var c Chain
	c.Pdh = next(SEVCertLen)
	c.Pek = next(SEVCertLen)
	c.Oca = next(SEVCertLen)
	c.Cek = next(SEVCertLen)
	c.Ask = next(caCertLen)
	c.Ark = next(caCertLen)
	return c, nil
}

// launchStartFromRaw splits a launch start buffer into its policy, guest
// owner certificate, and session components.
func launchStartFromRaw(data []byte) (LaunchStart, error) {
	want := LaunchPolicyLen + SEVCertLen + LaunchSessionLen
	if len(data) != want {
		return LaunchStart{}, fmt.Errorf("raw launch start is %d bytes, expected %d", len(data), want)
	}
	var ls LaunchStart
	ls.Policy = append(Blob{}, data[:LaunchPolicyLen]...)
	data = data[LaunchPolicyLen:]
	ls.Cert = append(Blob{}, data[:SEVCertLen]...)
	ls.Session = append(Blob{}, data[SEVCertLen:]...)
	return ls, nil
}
