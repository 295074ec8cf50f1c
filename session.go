// SPDX-License-Identifier: Apache-2.0

package koine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/enarx-archive/koine/sev"
)

// sendMsg runs an outbound message through the session sequencer before
// it goes on the wire, so a driver bug can never emit an out-of-order
// message.
func sendMsg(ctx context.Context, t Transport, seq *sev.Sequencer, log zerolog.Logger, msg sev.Message) error {
	if err := seq.Advance(msg.Type()); err != nil {
		return err
	}
	if err := t.Send(ctx, msg); err != nil {
		return fmt.Errorf("koine: sending %s: %w", msg.Type(), err)
	}
	log.Debug().Stringer("type", msg.Type()).Msg("message sent")
	return nil
}

// recvMsg receives the next message and runs it through the session
// sequencer, rejecting anything the handshake does not call for.
func recvMsg(ctx context.Context, t Transport, seq *sev.Sequencer, log zerolog.Logger) (sev.Message, error) {
	msg, err := t.Receive(ctx)
	if err != nil {
		return nil, fmt.Errorf("koine: receiving message: %w", err)
	}
	if err := seq.Advance(msg.Type()); err != nil {
		return nil, err
	}
	log.Debug().Stringer("type", msg.Type()).Msg("message received")
	return msg, nil
}
