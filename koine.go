// SPDX-License-Identifier: Apache-2.0

// Package koine conducts remote AMD SEV attestation between a tenant and
// the host launching secure VMs ("keeps") on its behalf.
//
// The message layer lives in the sev package. This package adds the
// pieces around it: the keep registry tracking launched instances, the
// message transport abstraction, and the Host and Tenant drivers that run
// the handshake end to end. Platform-specific work (certificate
// validation, measurement verification, secret encryption) stays behind
// the Platform and Verifier interfaces.
package koine

import (
	"fmt"
	"os"

	"github.com/enarx-archive/koine/sev"
)

// Protocol identity advertised by a keep manager.
const (
	ProtoName    = "Enarx-Keep-Manager"
	ProtoVersion = "0.2"
)

// Default listen configuration for a keep manager.
const (
	DefaultBindAddress = "0.0.0.0"
	DefaultBindPort    = 3030
)

// Backend is the isolation technology a keep runs under.
type Backend uint8

// Backend enumeration values
const (
	BackendNil Backend = iota
	BackendSev
	BackendSgx
	BackendKvm
)

// String implements Stringer.
func (b Backend) String() string {
	switch b {
	case BackendNil:
		return "nil"
	case BackendSev:
		return "sev"
	case BackendSgx:
		return "sgx"
	case BackendKvm:
		return "kvm"
	default:
		return "unknown"
	}
}

// DevicePath returns the device file whose presence indicates the
// backend is usable on this host.
func (b Backend) DevicePath() string {
	switch b {
	case BackendSev:
		return "/dev/sev"
	case BackendSgx:
		return "/dev/sgx/enclave"
	case BackendKvm:
		return "/dev/kvm"
	default:
		return "/"
	}
}

// Available reports whether the backend's device file exists.
func (b Backend) Available() bool {
	_, err := os.Stat(b.DevicePath())
	return err == nil
}

// ParseBackend parses a backend name as it appears in configuration.
func ParseBackend(name string) (Backend, error) {
	switch name {
	case "nil":
		return BackendNil, nil
	case "sev":
		return BackendSev, nil
	case "sgx":
		return BackendSgx, nil
	case "kvm":
		return BackendKvm, nil
	default:
		return BackendNil, fmt.Errorf("unknown backend %q", name)
	}
}

// LoaderState is the lifecycle state of a keep's loader.
type LoaderState uint8

// Loader lifecycle states
const (
	StateIndeterminate LoaderState = iota
	StateReady
	StateRunning
	StateShutdown
	StateError
)

// String implements Stringer.
func (s LoaderState) String() string {
	switch s {
	case StateIndeterminate:
		return "indeterminate"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateShutdown:
		return "shutdown"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Generation is an AMD SEV platform generation. The codec does not
// distinguish generations beyond the certificate chain tag; validators
// use the generation to pick component sizes.
type Generation uint8

// Platform generations
const (
	Naples Generation = iota
	Rome
)

// String implements Stringer.
func (g Generation) String() string {
	switch g {
	case Naples:
		return "naples"
	case Rome:
		return "rome"
	default:
		return "unknown"
	}
}

// ChainType returns the certificate chain message type for the
// generation.
func (g Generation) ChainType() sev.Type {
	if g == Rome {
		return sev.CertificateChainRomeType
	}
	return sev.CertificateChainNaplesType
}

// GenerationOf returns the generation announced by a chain message type
// and whether the type is a certificate chain at all.
func GenerationOf(t sev.Type) (Generation, bool) {
	switch t {
	case sev.CertificateChainNaplesType:
		return Naples, true
	case sev.CertificateChainRomeType:
		return Rome, true
	default:
		return Naples, false
	}
}
