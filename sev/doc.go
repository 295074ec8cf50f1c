// SPDX-License-Identifier: Apache-2.0

// Package sev implements the message layer of the remote AMD SEV
// attestation protocol spoken between a tenant and the host launching a
// secure VM on its behalf.
//
// The protocol is a fixed sequence of six message kinds exchanged over an
// established, reliable, ordered channel:
//
//	certificate-chain-{naples,rome} -> launch-start -> measurement
//	                                -> secret -> finish
//
// This package provides the codec for both wire representations of those
// messages (the externally tagged envelope form and the mimetype/payload
// packet form), the resolver that disambiguates packet payload encodings,
// and the Sequencer that enforces the handshake order. It never inspects
// the platform blobs it carries; certificate validation, measurement
// verification, and secret encryption all belong to the caller.
//
// Marshal, Unmarshal, and the packet functions are pure and safe for
// concurrent use. A Sequencer tracks one session and is not.
package sev
