package sandbox

import (
	"os"
	"path/filepath"
)

// Config configures the bwrap-backed Launcher. Field names mirror the
// environment variables the judging pipeline reads at startup.
type Config struct {
	SandboxExecutable   string // bwrap binary; SANDBOX_EXECUTABLE
	RLWExecutable       string // cmd/rlw binary; RLIMIT_WRAPPER_EXECUTABLE
	WorkspaceRoot       string // scratch root; the Controller has its own WorkspaceRoot and does not read this one
	DefaultQuota        Quota
	CompileQuota        Quota
	CheckerQuota        Quota
	GeneratorOutputCap  int64 // profile=generator gets a looser stdout cap
}

// DefaultConfig returns production-biased defaults.
func DefaultConfig() Config {
	workspaceRoot := os.Getenv("SANDBOX_WORKSPACE_ROOT")
	if workspaceRoot == "" {
		workspaceRoot = filepath.Join(os.TempDir(), "diffrun-sandbox")
	}

	return Config{
		SandboxExecutable: envOr("SANDBOX_EXECUTABLE", "bwrap"),
		RLWExecutable:     os.Getenv("RLIMIT_WRAPPER_EXECUTABLE"),
		WorkspaceRoot:     workspaceRoot,
		DefaultQuota: Quota{
			CPUSeconds:     envUintOr("PROG_TIME_LIMIT", 5),
			ASBytes:        envUintOr("PROG_MEMORY_LIMIT", 256) * 1024 * 1024,
			FSizeBytes:     envUintOr("PROG_OUTPUT_LIMIT", 16) * 1024,
			OutputCapBytes: 16 * 1024,
		},
		CompileQuota: Quota{
			CPUSeconds:     envUintOr("COMPILER_TIME_LIMIT", 15),
			ASBytes:        envUintOr("COMPILER_MEMORY_LIMIT", 512) * 1024 * 1024,
			FSizeBytes:     envUintOr("COMPILER_OUTPUT_LIMIT", 16384) * 1024,
			OutputCapBytes: 16384 * 1024,
		},
		CheckerQuota: Quota{
			CPUSeconds:     envUintOr("CHECKER_TIME_LIMIT", 2),
			ASBytes:        envUintOr("CHECKER_MEMORY_LIMIT", 256) * 1024 * 1024,
			FSizeBytes:     envUintOr("CHECKER_OUTPUT_LIMIT", 16) * 1024,
			OutputCapBytes: 16 * 1024,
		},
		GeneratorOutputCap: 1 << 20,
	}
}
