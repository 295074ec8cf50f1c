// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/enarx-archive/koine"
)

// config holds the settings shared by the host and tenant subcommands.
type config struct {
	Address    string
	Port       uint16
	Framing    koine.Framing
	Generation koine.Generation

	// Host side.
	ChainDir        string
	BuildFile       string
	MeasurementFile string
	SecretOutFile   string

	// Tenant side.
	OwnerCertFile       string
	Policy              uint32
	ExpectedMeasurement string
	SecretFile          string
}

// fileConfig is the koine config.toml key mapping.
type fileConfig struct {
	Address    string `toml:"address"`
	Port       uint16 `toml:"port"`
	Framing    string `toml:"framing"`
	Generation string `toml:"generation"`

	ChainDir        string `toml:"chain_dir"`
	BuildFile       string `toml:"build_file"`
	MeasurementFile string `toml:"measurement_file"`
	SecretOutFile   string `toml:"secret_out_file"`

	OwnerCertFile       string `toml:"owner_cert_file"`
	Policy              uint32 `toml:"policy"`
	ExpectedMeasurement string `toml:"expected_measurement"`
	SecretFile          string `toml:"secret_file"`
}

func defaultConfig() config {
	return config{
		Address:    koine.DefaultBindAddress,
		Port:       koine.DefaultBindPort,
		Framing:    koine.EnvelopeFraming,
		Generation: koine.Naples,
	}
}

// loadConfig overlays a TOML file, when given, onto the defaults.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return config{}, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("address") {
		cfg.Address = strings.TrimSpace(raw.Address)
	}
	if meta.IsDefined("port") {
		cfg.Port = raw.Port
	}
	if meta.IsDefined("framing") {
		cfg.Framing, err = parseFraming(raw.Framing)
		if err != nil {
			return config{}, fmt.Errorf("load config: %w", err)
		}
	}
	if meta.IsDefined("generation") {
		cfg.Generation, err = parseGeneration(raw.Generation)
		if err != nil {
			return config{}, fmt.Errorf("load config: %w", err)
		}
	}

	cfg.ChainDir = strings.TrimSpace(raw.ChainDir)
	cfg.BuildFile = strings.TrimSpace(raw.BuildFile)
	cfg.MeasurementFile = strings.TrimSpace(raw.MeasurementFile)
	cfg.SecretOutFile = strings.TrimSpace(raw.SecretOutFile)
	cfg.OwnerCertFile = strings.TrimSpace(raw.OwnerCertFile)
	cfg.Policy = raw.Policy
	cfg.ExpectedMeasurement = strings.TrimSpace(raw.ExpectedMeasurement)
	cfg.SecretFile = strings.TrimSpace(raw.SecretFile)
	return cfg, nil
}

func parseFraming(name string) (koine.Framing, error) {
	switch strings.TrimSpace(name) {
	case "", "envelope":
		return koine.EnvelopeFraming, nil
	case "packet":
		return koine.PacketFraming, nil
	default:
		return koine.EnvelopeFraming, fmt.Errorf("unknown framing %q", name)
	}
}

func parseGeneration(name string) (koine.Generation, error) {
	switch strings.TrimSpace(name) {
	case "", "naples":
		return koine.Naples, nil
	case "rome":
		return koine.Rome, nil
	default:
		return koine.Naples, fmt.Errorf("unknown generation %q", name)
	}
}
