// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/enarx-archive/koine"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loading empty config: %v", err)
	}
	if cfg.Address != koine.DefaultBindAddress {
		t.Errorf("address %q, want %q", cfg.Address, koine.DefaultBindAddress)
	}
	if cfg.Port != koine.DefaultBindPort {
		t.Errorf("port %d, want %d", cfg.Port, koine.DefaultBindPort)
	}
	if cfg.Framing != koine.EnvelopeFraming {
		t.Errorf("framing %s, want %s", cfg.Framing, koine.EnvelopeFraming)
	}
	if cfg.Generation != koine.Naples {
		t.Errorf("generation %s, want %s", cfg.Generation, koine.Naples)
	}
}

func TestLoadConfigOverlay(t *testing.T) {
	path := writeConfig(t, `
address = "198.51.100.7"
framing = "packet"
generation = "rome"
policy = 1
chain_dir = "/var/lib/koine/chain"
secret_file = "secret.bin"
`)
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	if cfg.Address != "198.51.100.7" {
		t.Errorf("address %q", cfg.Address)
	}
	// Unset keys keep their defaults.
	if cfg.Port != koine.DefaultBindPort {
		t.Errorf("port %d, want default %d", cfg.Port, koine.DefaultBindPort)
	}
	if cfg.Framing != koine.PacketFraming {
		t.Errorf("framing %s, want %s", cfg.Framing, koine.PacketFraming)
	}
	if cfg.Generation != koine.Rome {
		t.Errorf("generation %s, want %s", cfg.Generation, koine.Rome)
	}
	if cfg.Policy != 1 {
		t.Errorf("policy %d, want 1", cfg.Policy)
	}
	if cfg.ChainDir != "/var/lib/koine/chain" {
		t.Errorf("chain dir %q", cfg.ChainDir)
	}
	if cfg.SecretFile != "secret.bin" {
		t.Errorf("secret file %q", cfg.SecretFile)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := loadConfig(writeConfig(t, `framing = "pigeon"`)); err == nil {
		t.Error("expected error for unknown framing")
	}
	if _, err := loadConfig(writeConfig(t, `generation = "milan"`)); err == nil {
		t.Error("expected error for unknown generation")
	}
	if _, err := loadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected error for missing file")
	}
}
