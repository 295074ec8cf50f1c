// SPDX-License-Identifier: Apache-2.0

package sev

import "fmt"

// Step identifies the handshake stage a session is waiting on.
type Step uint8

// Handshake steps, in protocol order.
const (
	StepChain Step = iota
	StepLaunchStart
	StepMeasurement
	StepSecret
	StepFinish
	StepDone
)

// String implements Stringer.
func (s Step) String() string {
	switch s {
	case StepChain:
		return "certificate-chain"
	case StepLaunchStart:
		return "launch-start"
	case StepMeasurement:
		return "measurement"
	case StepSecret:
		return "secret"
	case StepFinish:
		return "finish"
	case StepDone:
		return "done"
	default:
		return "unknown"
	}
}

// Sequencer enforces the handshake ordering contract over one session's
// message stream:
//
//	certificate-chain -> launch-start -> measurement -> secret -> finish
//
// No step may be skipped or repeated. The ordering is not encoded in any
// message byte; both sides must run a Sequencer over every message they
// send or receive and tear the session down on the first violation.
//
// The zero value is a Sequencer at the start of a session. A Sequencer
// serializes one session and is not safe for concurrent use; independent
// sessions use independent Sequencers.
type Sequencer struct {
	step     Step
	measured bool
}

// Step returns the stage the session is currently waiting on.
func (s *Sequencer) Step() Step { return s.step }

// Done reports whether the handshake ran to completion.
func (s *Sequencer) Done() bool { return s.step == StepDone }

// Advance records the next message in the session stream, returning a
// SequenceError if it is not the one the protocol calls for. On error the
// sequencer does not move; the session is expected to be abandoned, not
// resumed.
func (s *Sequencer) Advance(t Type) error {
	switch s.step {
	case StepChain:
		if t == CertificateChainNaplesType || t == CertificateChainRomeType {
			s.step = StepLaunchStart
			return nil
		}
	case StepLaunchStart:
		if t == LaunchStartType {
			s.step = StepMeasurement
			return nil
		}
	case StepMeasurement:
		if t == MeasurementType {
			s.measured = true
			s.step = StepSecret
			return nil
		}
	case StepSecret:
		// The protocol's core trust invariant: no secret moves before a
		// measurement has been seen in this session.
		if t == SecretType && s.measured {
			s.step = StepFinish
			return nil
		}
	case StepFinish:
		if t == FinishType {
			s.step = StepDone
			return nil
		}
	case StepDone:
	}
	return &SequenceError{Got: t, Want: s.expect()}
}

// expect lists the message types legal at the current step.
func (s *Sequencer) expect() []Type {
	switch s.step {
	case StepChain:
		return []Type{CertificateChainNaplesType, CertificateChainRomeType}
	case StepLaunchStart:
		return []Type{LaunchStartType}
	case StepMeasurement:
		return []Type{MeasurementType}
	case StepSecret:
		if s.measured {
			return []Type{SecretType}
		}
		return nil
	case StepFinish:
		return []Type{FinishType}
	default:
		return nil
	}
}

// SequenceError reports a message that arrived out of handshake order.
type SequenceError struct {
	Got  Type
	Want []Type
}

// Error implements the standard error interface.
func (e *SequenceError) Error() string {
	if len(e.Want) == 0 {
		return fmt.Sprintf("sev: %s message after handshake completed", e.Got)
	}
	return fmt.Sprintf("sev: out-of-order %s message, expected %v", e.Got, e.Want)
}
