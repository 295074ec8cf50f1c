// SPDX-License-Identifier: Apache-2.0

package koine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/enarx-archive/koine/sev"
)

// Platform is the host's interface to the AMD secure processor. The
// driver never looks inside the blobs these methods produce or consume;
// launch mechanics and cryptography live entirely behind it.
type Platform interface {
	// CertificateChain exports the platform certificate chain and the
	// generation it belongs to.
	CertificateChain(ctx context.Context) (Generation, sev.Chain, error)

	// LaunchStart begins a guest launch with the tenant's session
	// parameters.
	LaunchStart(ctx context.Context, ls sev.LaunchStart) error

	// Measure returns the build descriptor and launch measurement of the
	// launched guest.
	Measure(ctx context.Context) (sev.Measurement, error)

	// InjectSecret places the tenant's secret into the guest.
	InjectSecret(ctx context.Context, s sev.Secret) error

	// Finish completes the launch and returns the finish payload.
	Finish(ctx context.Context) (sev.Finish, error)
}

// Host drives the platform side of the attestation handshake: it offers
// its certificate chain, launches the keep to the tenant's parameters,
// reports the measurement, and injects the returned secret.
type Host struct {
	Platform Platform

	// Logger receives per-step debug logging. The zero value disables
	// logging.
	Logger zerolog.Logger
}

// Attest runs one full handshake over the transport. Any error is
// terminal for the session; the caller owns closing the transport.
func (h *Host) Attest(ctx context.Context, t Transport) error {
	seq := new(sev.Sequencer)
	log := h.Logger.With().Str("role", "host").Logger()

	gen, chain, err := h.Platform.CertificateChain(ctx)
	if err != nil {
		return fmt.Errorf("koine: exporting certificate chain: %w", err)
	}
	var chainMsg sev.Message
	if gen == Rome {
		chainMsg = sev.CertificateChainRome{Chain: chain}
	} else {
		chainMsg = sev.CertificateChainNaples{Chain: chain}
	}
	if err := sendMsg(ctx, t, seq, log, chainMsg); err != nil {
		return err
	}

	msg, err := recvMsg(ctx, t, seq, log)
	if err != nil {
		return err
	}
	ls, ok := msg.(sev.LaunchStart)
	if !ok {
		return fmt.Errorf("koine: unexpected %s message", msg.Type())
	}
	if err := h.Platform.LaunchStart(ctx, ls); err != nil {
		return fmt.Errorf("koine: starting launch: %w", err)
	}

	measurement, err := h.Platform.Measure(ctx)
	if err != nil {
		return fmt.Errorf("koine: measuring guest: %w", err)
	}
	if err := sendMsg(ctx, t, seq, log, measurement); err != nil {
		return err
	}

	msg, err = recvMsg(ctx, t, seq, log)
	if err != nil {
		return err
	}
	secret, ok := msg.(sev.Secret)
	if !ok {
		return fmt.Errorf("koine: unexpected %s message", msg.Type())
	}
	if secret.Data == nil {
		log.Debug().Msg("no secret sent for this launch")
	} else if err := h.Platform.InjectSecret(ctx, secret); err != nil {
		return fmt.Errorf("koine: injecting secret: %w", err)
	}

	finish, err := h.Platform.Finish(ctx)
	if err != nil {
		return fmt.Errorf("koine: finishing launch: %w", err)
	}
	if err := sendMsg(ctx, t, seq, log, finish); err != nil {
		return err
	}

	log.Info().Stringer("generation", gen).Msg("attestation complete")
	return nil
}
