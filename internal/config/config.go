// Package config loads the diff runner's environment-driven
// configuration.
package config

import (
	"os"
	"strconv"
	"time"

	"apex-diffrun/internal/sandbox"
)

// Config is the process-wide configuration assembled from environment
// variables.
type Config struct {
	HTTPAddr string

	SandboxExecutable       string
	RLWExecutable           string
	CheckerExecutablePrefix string
	TestlibPath             string

	ProgQuota     sandbox.Quota
	CompilerQuota sandbox.Quota
	CheckerQuota  sandbox.Quota

	DBDriver string
	DBDSN    string

	RedisAddr string

	JWTSecret string
}

// Load reads Config from the environment, applying production defaults
// where a variable is unset.
func Load() Config {
	return Config{
		HTTPAddr: envOr("HTTP_ADDR", ":8080"),

		SandboxExecutable:       envOr("SANDBOX_EXECUTABLE", "bwrap"),
		RLWExecutable:           os.Getenv("RLIMIT_WRAPPER_EXECUTABLE"),
		CheckerExecutablePrefix: os.Getenv("CHECKER_EXECUTABLE_PREFIX"),
		TestlibPath:             os.Getenv("TESTLIB_PATH"),

		ProgQuota: sandbox.Quota{
			CPUSeconds:     envUintOr("PROG_TIME_LIMIT", 5),
			ASBytes:        envUintOr("PROG_MEMORY_LIMIT", 256) * 1024 * 1024,
			FSizeBytes:     envUintOr("PROG_OUTPUT_LIMIT", 16) * 1024,
			OutputCapBytes: 16 * 1024,
		},
		CompilerQuota: sandbox.Quota{
			CPUSeconds:     envUintOr("COMPILER_TIME_LIMIT", 15),
			ASBytes:        envUintOr("COMPILER_MEMORY_LIMIT", 512) * 1024 * 1024,
			FSizeBytes:     envUintOr("COMPILER_OUTPUT_LIMIT", 16384) * 1024,
			OutputCapBytes: 16384 * 1024,
		},
		CheckerQuota: sandbox.Quota{
			CPUSeconds:     envUintOr("CHECKER_TIME_LIMIT", 2),
			ASBytes:        envUintOr("CHECKER_MEMORY_LIMIT", 256) * 1024 * 1024,
			FSizeBytes:     envUintOr("CHECKER_OUTPUT_LIMIT", 16) * 1024,
			OutputCapBytes: 16 * 1024,
		},

		DBDriver: envOr("DB_DRIVER", "sqlite"),
		DBDSN:    envOr("DB_DSN", "diffrun.db"),

		RedisAddr: os.Getenv("REDIS_ADDR"),

		JWTSecret: os.Getenv("JWT_SECRET"),
	}
}

// CompileQuotaTimeout is a convenience for callers that need a plain
// time.Duration rather than the raw quota.
func (c Config) CompileQuotaTimeout() time.Duration {
	return time.Duration(c.CompilerQuota.CPUSeconds)*time.Second*2 + time.Second
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envUintOr(key string, fallback uint64) uint64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
