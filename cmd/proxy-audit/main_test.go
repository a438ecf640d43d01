package main

import "testing"

func TestParseFlags(t *testing.T) {
	t.Setenv("HISTORY_WINDOW", "")
	t.Setenv("TOGGLE_WINDOW", "")
	t.Setenv("CHUNK_SIZE", "")

	valid := []string{
		"--rpc-url", "http://localhost:8545",
		"--address", "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		"--account", "0x1111111111111111111111111111111111111111",
	}

	cfg, err := parseFlags(valid)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.historyWindow != 200_000 || cfg.toggleWindow != 1_000 {
		t.Errorf("unexpected window defaults: %+v", cfg)
	}
	if cfg.chunkSize != 50_000 || cfg.concurrency != 4 {
		t.Errorf("unexpected scan defaults: %+v", cfg)
	}
}

func TestParseFlags_Validation(t *testing.T) {
	t.Setenv("RPC_URL", "")

	tests := []struct {
		name string
		args []string
	}{
		{"missing rpc url", []string{
			"--address", "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
			"--account", "0x1111111111111111111111111111111111111111",
		}},
		{"bad address", []string{
			"--rpc-url", "http://localhost:8545",
			"--address", "not-hex",
			"--account", "0x1111111111111111111111111111111111111111",
		}},
		{"bad account", []string{
			"--rpc-url", "http://localhost:8545",
			"--address", "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
			"--account", "",
		}},
		{"inverted range", []string{
			"--rpc-url", "http://localhost:8545",
			"--address", "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
			"--account", "0x1111111111111111111111111111111111111111",
			"--from", "900", "--to", "100",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseFlags(tt.args); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}
