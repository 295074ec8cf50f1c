// SPDX-License-Identifier: Apache-2.0

package main

import (
	"testing"

	"github.com/enarx-archive/koine"
)

func TestProtoIdent(t *testing.T) {
	want := koine.ProtoName + "/" + koine.ProtoVersion
	if got := protoIdent(); got != want {
		t.Errorf("protocol identity %q, want %q", got, want)
	}
	if rootCmd.Version != want {
		t.Errorf("command version %q, want %q", rootCmd.Version, want)
	}
}
