// SPDX-License-Identifier: Apache-2.0

// Package koinetest provides mock collaborators and an end-to-end
// handshake test suite for use in koine tests.
package koinetest

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/enarx-archive/koine"
	"github.com/enarx-archive/koine/sev"
)

// TestChain returns a small deterministic certificate chain. The blobs
// are not real certificates; the protocol layer never inspects them.
func TestChain() sev.Chain {
	return sev.Chain{
		Ark: sev.Blob{1, 2, 3, 4},
		Ask: sev.Blob{5, 6, 7, 8},
		Oca: sev.Blob{21, 22, 23, 24},
		Cek: sev.Blob{13, 14, 15, 16},
		Pek: sev.Blob{9, 10, 11, 12},
		Pdh: sev.Blob{17, 18, 19, 20},
	}
}

// TestLaunchStart returns deterministic launch-start parameters.
func TestLaunchStart() sev.LaunchStart {
	return sev.LaunchStart{
		Policy:  sev.Blob{0x01, 0x00, 0x00, 0x00},
		Cert:    sev.Blob{0xaa, 0xbb},
		Session: sev.Blob{0xcc, 0xdd, 0xee},
	}
}

// TestMeasurement returns a deterministic measurement payload.
func TestMeasurement() sev.Measurement {
	return sev.Measurement{
		Build:       sev.Blob{0x17, 0x18, 0x00},
		Measurement: sev.Blob{0xde, 0xad, 0xbe, 0xef},
	}
}

// MockPlatform implements koine.Platform with canned payloads, recording
// what the driver hands it.
type MockPlatform struct {
	Gen         koine.Generation
	Chain       sev.Chain
	Measurement sev.Measurement

	// Recorded by the driver calls.
	LaunchedWith *sev.LaunchStart
	Injected     *sev.Secret
	Finished     bool

	// Optional failure injection.
	MeasureErr error
	InjectErr  error
}

// NewMockPlatform returns a platform with the canned test payloads.
func NewMockPlatform(gen koine.Generation) *MockPlatform {
	return &MockPlatform{Gen: gen, Chain: TestChain(), Measurement: TestMeasurement()}
}

// CertificateChain implements koine.Platform.
func (p *MockPlatform) CertificateChain(context.Context) (koine.Generation, sev.Chain, error) {
	return p.Gen, p.Chain, nil
}

// LaunchStart implements koine.Platform.
func (p *MockPlatform) LaunchStart(_ context.Context, ls sev.LaunchStart) error {
	p.LaunchedWith = &ls
	return nil
}

// Measure implements koine.Platform.
func (p *MockPlatform) Measure(context.Context) (sev.Measurement, error) {
	return p.Measurement, p.MeasureErr
}

// InjectSecret implements koine.Platform.
func (p *MockPlatform) InjectSecret(_ context.Context, s sev.Secret) error {
	if p.InjectErr != nil {
		return p.InjectErr
	}
	p.Injected = &s
	return nil
}

// Finish implements koine.Platform.
func (p *MockPlatform) Finish(context.Context) (sev.Finish, error) {
	p.Finished = true
	return sev.Finish{}, nil
}

// MockVerifier implements koine.Verifier, accepting everything unless an
// error is injected and releasing a fixed secret.
type MockVerifier struct {
	Secret sev.Secret

	ChainErr       error
	MeasurementErr error

	// Recorded by the driver calls.
	SeenGen         *koine.Generation
	SeenChain       *sev.Chain
	SeenMeasurement *sev.Measurement
}

// ValidateChain implements koine.Verifier.
func (v *MockVerifier) ValidateChain(_ context.Context, gen koine.Generation, chain sev.Chain) error {
	v.SeenGen, v.SeenChain = &gen, &chain
	return v.ChainErr
}

// LaunchStart implements koine.Verifier.
func (v *MockVerifier) LaunchStart(context.Context, koine.Generation, sev.Chain) (sev.LaunchStart, error) {
	return TestLaunchStart(), nil
}

// VerifyMeasurement implements koine.Verifier.
func (v *MockVerifier) VerifyMeasurement(_ context.Context, m sev.Measurement) (sev.Secret, error) {
	v.SeenMeasurement = &m
	if v.MeasurementErr != nil {
		return sev.Secret{}, v.MeasurementErr
	}
	return v.Secret, nil
}

// ScriptTransport is a Transport fed from a fixed queue of inbound
// messages, recording everything sent. It is for driving one side of a
// handshake with a hostile or broken peer.
type ScriptTransport struct {
	Incoming []sev.Message
	Sent     []sev.Message
	Closed   bool
}

// Send implements koine.Transport.
func (s *ScriptTransport) Send(ctx context.Context, msg sev.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.Sent = append(s.Sent, msg)
	return nil
}

// Receive implements koine.Transport.
func (s *ScriptTransport) Receive(ctx context.Context) (sev.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.Incoming) == 0 {
		return nil, context.Canceled
	}
	msg := s.Incoming[0]
	s.Incoming = s.Incoming[1:]
	return msg, nil
}

// Close implements koine.Transport.
func (s *ScriptTransport) Close() error {
	s.Closed = true
	return nil
}

// RunHandshakeTestSuite runs a complete host/tenant handshake over an
// in-memory connection with the given framing and checks that the secret
// made it to the platform and the keep into the registry.
func RunHandshakeTestSuite(t *testing.T, gen koine.Generation, framing koine.Framing) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hostConn, tenantConn := net.Pipe()
	hostTransport := koine.NewStreamTransport(hostConn, framing)
	tenantTransport := koine.NewStreamTransport(tenantConn, framing)
	defer func() {
		_ = hostTransport.Close()
		_ = tenantTransport.Close()
	}()

	logger := zerolog.New(zerolog.NewTestWriter(t))
	platform := NewMockPlatform(gen)
	verifier := &MockVerifier{Secret: sev.Secret{Data: sev.Blob{0xfe, 0xed, 0xfa, 0xce}}}
	registry := koine.NewRegistry()

	host := &koine.Host{Platform: platform, Logger: logger}
	tenant := &koine.Tenant{Verifier: verifier, Registry: registry, Logger: logger}

	hostErr := make(chan error, 1)
	go func() { hostErr <- host.Attest(ctx, hostTransport) }()

	keep, err := tenant.Attest(ctx, tenantTransport)
	if err != nil {
		t.Fatalf("tenant attestation failed: %v", err)
	}
	if err := <-hostErr; err != nil {
		t.Fatalf("host attestation failed: %v", err)
	}

	if platform.LaunchedWith == nil {
		t.Fatal("platform never received launch start parameters")
	}
	if platform.Injected == nil {
		t.Fatal("platform never received the secret")
	}
	if !bytes.Equal(platform.Injected.Data, verifier.Secret.Data) {
		t.Errorf("injected secret %x, want %x", platform.Injected.Data, verifier.Secret.Data)
	}
	if !platform.Finished {
		t.Error("platform never finished the launch")
	}
	if verifier.SeenChain == nil || verifier.SeenGen == nil {
		t.Fatal("verifier never saw the certificate chain")
	}
	if *verifier.SeenGen != gen {
		t.Errorf("verifier saw generation %s, want %s", verifier.SeenGen, gen)
	}
	if got, ok := registry.Get(keep.ID); !ok {
		t.Error("attested keep not recorded in registry")
	} else if got.State != koine.StateRunning {
		t.Errorf("keep state %s, want %s", got.State, koine.StateRunning)
	}
}
