// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net"
	"os"

	"github.com/spf13/cobra"

	"github.com/enarx-archive/koine"
	"github.com/enarx-archive/koine/sev"
)

var tenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Attest a remote host and launch a keep on it",
	Long:  "Connect to a host, verify its certificate chain and launch measurement against the configured expectations, and inject the configured secret.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}

		addr := net.JoinHostPort(cfg.Address, fmt.Sprint(cfg.Port))
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return fmt.Errorf("tenant: connecting to %s: %w", addr, err)
		}
		defer conn.Close()

		tenant := &koine.Tenant{
			Verifier: &fileVerifier{cfg: cfg},
			Registry: koine.NewRegistry(),
			Logger:   logger,
		}
		keep, err := tenant.Attest(cmd.Context(), koine.NewStreamTransport(conn, cfg.Framing))
		if err != nil {
			return fmt.Errorf("tenant: %w", err)
		}
		fmt.Printf("keep %s attested on %s\n", keep.ID, addr)
		return nil
	},
}

// fileVerifier implements koine.Verifier from expectations in the
// configuration. Chain component sizes are checked against the raw
// platform layouts; signature verification is left to the policy engine
// feeding the expected measurement.
type fileVerifier struct {
	cfg config
}

func (v *fileVerifier) ValidateChain(_ context.Context, gen koine.Generation, chain sev.Chain) error {
	if gen != v.cfg.Generation {
		return fmt.Errorf("platform is %s, expected %s", gen, v.cfg.Generation)
	}
	caCertLen := sev.NaplesCACertLen
	if gen == koine.Rome {
		caCertLen = sev.RomeCACertLen
	}
	for _, part := range []struct {
		name string
		blob sev.Blob
		want int
	}{
		{name: "ark", blob: chain.Ark, want: caCertLen},
		{name: "ask", blob: chain.Ask, want: caCertLen},
		{name: "oca", blob: chain.Oca, want: sev.SEVCertLen},
		{name: "cek", blob: chain.Cek, want: sev.SEVCertLen},
		{name: "pek", blob: chain.Pek, want: sev.SEVCertLen},
		{name: "pdh", blob: chain.Pdh, want: sev.SEVCertLen},
	} {
		if len(part.blob) != part.want {
			return fmt.Errorf("%s certificate is %d bytes, expected %d", part.name, len(part.blob), part.want)
		}
	}
	return nil
}

func (v *fileVerifier) LaunchStart(_ context.Context, _ koine.Generation, _ sev.Chain) (sev.LaunchStart, error) {
	var ls sev.LaunchStart
	ls.Policy = make(sev.Blob, sev.LaunchPolicyLen)
	binary.LittleEndian.PutUint32(ls.Policy, v.cfg.Policy)

	if v.cfg.OwnerCertFile != "" {
		cert, err := os.ReadFile(v.cfg.OwnerCertFile)
		if err != nil {
			return sev.LaunchStart{}, fmt.Errorf("reading owner certificate: %w", err)
		}
		ls.Cert = cert
	}

	ls.Session = make(sev.Blob, sev.LaunchSessionLen)
	if _, err := rand.Read(ls.Session); err != nil {
		return sev.LaunchStart{}, fmt.Errorf("generating session buffer: %w", err)
	}
	return ls, nil
}

func (v *fileVerifier) VerifyMeasurement(_ context.Context, m sev.Measurement) (sev.Secret, error) {
	if v.cfg.ExpectedMeasurement != "" {
		want, err := hex.DecodeString(v.cfg.ExpectedMeasurement)
		if err != nil {
			return sev.Secret{}, fmt.Errorf("bad expected_measurement: %w", err)
		}
		if !bytes.Equal(m.Measurement, want) {
			return sev.Secret{}, fmt.Errorf("measurement % x does not match expected % x", m.Measurement, want)
		}
	}
	if v.cfg.SecretFile == "" {
		// Attest without injecting anything.
		return sev.Secret{}, nil
	}
	data, err := os.ReadFile(v.cfg.SecretFile)
	if err != nil {
		return sev.Secret{}, fmt.Errorf("reading secret: %w", err)
	}
	return sev.Secret{Data: data}, nil
}

func init() {
	rootCmd.AddCommand(tenantCmd)
}
