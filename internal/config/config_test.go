package config_test

import (
	"os"
	"testing"

	"github.com/collabhub/server/internal/config"
)

func TestLoad_SandboxLimitsDefaultToNonZeroValues(t *testing.T) {
	for _, key := range []string{"EXEC_CPU_CORES", "EXEC_MEMORY_BYTES", "EXEC_TMPFS_BYTES", "EXEC_OUTPUT_MAX_BYTES"} {
		os.Unsetenv(key)
	}

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.ExecCPUCores <= 0 {
		t.Errorf("expected a positive default CPU core limit, got %v", cfg.ExecCPUCores)
	}

	if cfg.ExecMemoryBytes <= 0 {
		t.Errorf("expected a positive default memory limit, got %d", cfg.ExecMemoryBytes)
	}

	if cfg.ExecTmpfsBytes <= 0 {
		t.Errorf("expected a positive default tmpfs limit, got %d", cfg.ExecTmpfsBytes)
	}

	if cfg.ExecOutputMaxBytes <= 0 {
		t.Errorf("expected a positive default output limit, got %d", cfg.ExecOutputMaxBytes)
	}
}

func TestLoad_SandboxLimitsReadFromEnvironment(t *testing.T) {
	t.Setenv("EXEC_CPU_CORES", "2.5")
	t.Setenv("EXEC_MEMORY_BYTES", "536870912")
	t.Setenv("EXEC_TMPFS_BYTES", "20971520")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.ExecCPUCores != 2.5 {
		t.Errorf("expected EXEC_CPU_CORES override to take effect, got %v", cfg.ExecCPUCores)
	}

	if cfg.ExecMemoryBytes != 536870912 {
		t.Errorf("expected EXEC_MEMORY_BYTES override to take effect, got %d", cfg.ExecMemoryBytes)
	}

	if cfg.ExecTmpfsBytes != 20971520 {
		t.Errorf("expected EXEC_TMPFS_BYTES override to take effect, got %d", cfg.ExecTmpfsBytes)
	}
}
