// SPDX-License-Identifier: Apache-2.0

package koine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/enarx-archive/koine/sev"
)

// Verifier is the tenant's trust policy. Certificate and measurement
// cryptography happen behind it; the driver only moves its decisions
// through the handshake.
type Verifier interface {
	// ValidateChain checks the platform certificate chain. An error
	// aborts the handshake before any tenant material is sent.
	ValidateChain(ctx context.Context, gen Generation, chain sev.Chain) error

	// LaunchStart produces the session parameters tailored to the
	// tenant's expectations for the keep.
	LaunchStart(ctx context.Context, gen Generation, chain sev.Chain) (sev.LaunchStart, error)

	// VerifyMeasurement checks the reported launch measurement and, if
	// satisfied, releases the secret to inject. A Secret with nil Data
	// releases no secret while letting the launch proceed.
	VerifyMeasurement(ctx context.Context, m sev.Measurement) (sev.Secret, error)
}

// Tenant drives the secret-holding side of the attestation handshake.
type Tenant struct {
	Verifier Verifier

	// Registry, when set, records each successfully attested keep.
	Registry *Registry

	// Logger receives per-step debug logging. The zero value disables
	// logging.
	Logger zerolog.Logger
}

// Attest runs one full handshake over the transport and returns the
// record of the attested keep. The secret is released only after the
// measurement has been received and verified; any earlier failure aborts
// the session with nothing sensitive on the wire.
func (tn *Tenant) Attest(ctx context.Context, t Transport) (Keep, error) {
	seq := new(sev.Sequencer)
	log := tn.Logger.With().Str("role", "tenant").Logger()

	msg, err := recvMsg(ctx, t, seq, log)
	if err != nil {
		return Keep{}, err
	}
	gen, ok := GenerationOf(msg.Type())
	if !ok {
		return Keep{}, fmt.Errorf("koine: unexpected %s message", msg.Type())
	}
	var chain sev.Chain
	switch m := msg.(type) {
	case sev.CertificateChainNaples:
		chain = m.Chain
	case sev.CertificateChainRome:
		chain = m.Chain
	}
	if err := tn.Verifier.ValidateChain(ctx, gen, chain); err != nil {
		return Keep{}, fmt.Errorf("koine: certificate chain rejected: %w", err)
	}

	ls, err := tn.Verifier.LaunchStart(ctx, gen, chain)
	if err != nil {
		return Keep{}, fmt.Errorf("koine: building launch start: %w", err)
	}
	if err := sendMsg(ctx, t, seq, log, ls); err != nil {
		return Keep{}, err
	}

	msg, err = recvMsg(ctx, t, seq, log)
	if err != nil {
		return Keep{}, err
	}
	measurement, ok := msg.(sev.Measurement)
	if !ok {
		return Keep{}, fmt.Errorf("koine: unexpected %s message", msg.Type())
	}
	secret, err := tn.Verifier.VerifyMeasurement(ctx, measurement)
	if err != nil {
		return Keep{}, fmt.Errorf("koine: measurement rejected: %w", err)
	}
	if err := sendMsg(ctx, t, seq, log, secret); err != nil {
		return Keep{}, err
	}

	msg, err = recvMsg(ctx, t, seq, log)
	if err != nil {
		return Keep{}, err
	}
	if _, ok := msg.(sev.Finish); !ok {
		return Keep{}, fmt.Errorf("koine: unexpected %s message", msg.Type())
	}

	keep := Keep{
		ID:       uuid.New(),
		Backend:  BackendSev,
		State:    StateRunning,
		Attested: time.Now(),
	}
	if tn.Registry != nil {
		tn.Registry.Add(keep)
	}
	log.Info().Stringer("keep", keep.ID).Stringer("generation", gen).Msg("keep attested")
	return keep, nil
}
