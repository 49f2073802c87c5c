// Copyright 2025 Certen Protocol
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleConfig = `
environment: test
validator:
  address: "0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20"
  bls_private_key_path: ${BLS_KEY_PATH:-./keys/bls.key}
consensus:
  rpc_url: ${RPC_URL}
consensus_adapter:
  min_delay: 200ms
execution:
  worker_count: 4
`

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadAppliesEnvVarSubstitution(t *testing.T) {
	t.Setenv("RPC_URL", "http://127.0.0.1:26657")
	path := writeTempConfig(t, sampleConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Consensus.RPCURL != "http://127.0.0.1:26657" {
		t.Fatalf("RPCURL = %q, want substituted env value", cfg.Consensus.RPCURL)
	}
	if cfg.Validator.BLSPrivateKeyPath != "./keys/bls.key" {
		t.Fatalf("BLSPrivateKeyPath = %q, want default fallback applied", cfg.Validator.BLSPrivateKeyPath)
	}
}

func TestLoadAppliesDefaultsForUnsetFields(t *testing.T) {
	t.Setenv("RPC_URL", "http://localhost:26657")
	path := writeTempConfig(t, sampleConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Path == "" {
		t.Fatalf("expected a default store path to be applied")
	}
	if cfg.Admin.ListenAddr != ":8080" {
		t.Fatalf("Admin.ListenAddr = %q, want default :8080", cfg.Admin.ListenAddr)
	}
	if cfg.Adapter.MinDelay.Duration() != 200*time.Millisecond {
		t.Fatalf("explicit min_delay overridden by defaults: got %s", cfg.Adapter.MinDelay.Duration())
	}
	if cfg.Adapter.MaxDelay.Duration() != 3*time.Second {
		t.Fatalf("MaxDelay default not applied: got %s", cfg.Adapter.MaxDelay.Duration())
	}
	if cfg.Execution.WorkerCount != 4 {
		t.Fatalf("explicit worker_count overridden by defaults: got %d", cfg.Execution.WorkerCount)
	}
}

func TestValidateReportsMissingRequiredFields(t *testing.T) {
	cfg := &ValidatorConfig{}
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected Validate to fail on an empty config")
	}
}

func TestValidatePassesWithRequiredFieldsSet(t *testing.T) {
	cfg := &ValidatorConfig{}
	cfg.Validator.Address = "aa"
	cfg.Validator.BLSPrivateKeyPath = "./bls.key"
	cfg.Consensus.RPCURL = "http://localhost:26657"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: unexpected error %v", err)
	}
}

func TestSubstituteEnvVarsDefaultWhenUnset(t *testing.T) {
	os.Unsetenv("UNSET_TEST_VAR_XYZ")
	got := substituteEnvVars("value: ${UNSET_TEST_VAR_XYZ:-fallback}")
	if got != "value: fallback" {
		t.Fatalf("substituteEnvVars = %q, want fallback applied", got)
	}
}

func TestDurationUnmarshalYAMLRejectsInvalid(t *testing.T) {
	path := writeTempConfig(t, "consensus_adapter:\n  min_delay: not-a-duration\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected Load to fail on an invalid duration")
	}
}
