package main

import (
	"errors"
	"io"
	"testing"

	"github.com/jalad-shrimali/ffiec-income/output"
)

func TestRootCmdRejectsUnknownMode(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"staging"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	err := cmd.Execute()
	if !errors.Is(err, output.ErrInvalidMode) {
		t.Fatalf("got %v, want ErrInvalidMode", err)
	}
}

func TestRootCmdRejectsExtraArgs(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"dev", "prod"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for two positional arguments")
	}
}

func TestRootCmdFlags(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{"config", "out-dir", "sqlite", "summary", "pushgateway", "debug"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("flag --%s not registered", name)
		}
	}
}
