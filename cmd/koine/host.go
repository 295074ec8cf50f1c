// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/enarx-archive/koine"
	"github.com/enarx-archive/koine/sev"
)

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Serve attestation handshakes for this platform",
	Long:  "Listen for tenant connections and run the host side of the handshake, exporting the platform certificate chain from chain_dir and writing any injected secret to secret_out_file.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		if cfg.ChainDir == "" {
			return fmt.Errorf("host: chain_dir must be configured")
		}

		platform := &filePlatform{cfg: cfg}
		host := &koine.Host{Platform: platform, Logger: logger}

		addr := net.JoinHostPort(cfg.Address, fmt.Sprint(cfg.Port))
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("host: listening on %s: %w", addr, err)
		}
		defer ln.Close()
		logger.Info().
			Str("protocol", protoIdent()).
			Str("address", addr).
			Stringer("framing", cfg.Framing).
			Msg("listening")

		for {
			conn, err := ln.Accept()
			if err != nil {
				return fmt.Errorf("host: accepting connection: %w", err)
			}
			go func() {
				defer conn.Close()
				t := koine.NewStreamTransport(conn, cfg.Framing)
				if err := host.Attest(cmd.Context(), t); err != nil {
					logger.Error().Err(err).Str("peer", conn.RemoteAddr().String()).Msg("handshake failed")
				}
			}()
		}
	},
}

// chainComponents maps the chain component names to their file names
// under chain_dir.
var chainComponents = []string{"ark", "ask", "oca", "cek", "pek", "pdh"}

// filePlatform implements koine.Platform from material on disk. It
// stands in for the SEV firmware interface on machines where the launch
// is managed elsewhere.
type filePlatform struct {
	cfg config
}

func (p *filePlatform) CertificateChain(context.Context) (koine.Generation, sev.Chain, error) {
	var chain sev.Chain
	for _, name := range chainComponents {
		data, err := os.ReadFile(filepath.Join(p.cfg.ChainDir, name+".cert"))
		if err != nil {
			return 0, sev.Chain{}, fmt.Errorf("reading chain component: %w", err)
		}
		switch name {
		case "ark":
			chain.Ark = data
		case "ask":
			chain.Ask = data
		case "oca":
			chain.Oca = data
		case "cek":
			chain.Cek = data
		case "pek":
			chain.Pek = data
		case "pdh":
			chain.Pdh = data
		}
	}
	return p.cfg.Generation, chain, nil
}

func (p *filePlatform) LaunchStart(_ context.Context, ls sev.LaunchStart) error {
	logger.Debug().
		Hex("policy", ls.Policy).
		Int("session_len", len(ls.Session)).
		Msg("launch started")
	return nil
}

func (p *filePlatform) Measure(context.Context) (sev.Measurement, error) {
	var m sev.Measurement
	var err error
	if p.cfg.BuildFile != "" {
		if m.Build, err = os.ReadFile(p.cfg.BuildFile); err != nil {
			return sev.Measurement{}, fmt.Errorf("reading build descriptor: %w", err)
		}
	}
	if p.cfg.MeasurementFile == "" {
		return sev.Measurement{}, fmt.Errorf("host: measurement_file must be configured")
	}
	if m.Measurement, err = os.ReadFile(p.cfg.MeasurementFile); err != nil {
		return sev.Measurement{}, fmt.Errorf("reading measurement: %w", err)
	}
	return m, nil
}

func (p *filePlatform) InjectSecret(_ context.Context, s sev.Secret) error {
	if p.cfg.SecretOutFile == "" {
		return fmt.Errorf("host: secret received but secret_out_file is not configured")
	}
	if err := os.WriteFile(p.cfg.SecretOutFile, s.Data, 0o600); err != nil {
		return fmt.Errorf("writing secret: %w", err)
	}
	return nil
}

func (p *filePlatform) Finish(context.Context) (sev.Finish, error) {
	return sev.Finish{}, nil
}

func init() {
	rootCmd.AddCommand(hostCmd)
}
