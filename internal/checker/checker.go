// Package checker runs a testlib-convention checker binary over an
// (input, output, answer) triple and maps its exit code to a verdict.
package checker

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// Result is the checker's verdict and human-readable detail.
type Result struct {
	Status string // "OK", "WA", or "Checker <kind>"
	Detail string
}

// Driver runs checker binaries. Checkers are trusted operator-supplied
// code so this driver shells out directly rather than
// going through the Sandbox Launcher; it still bounds runtime with ctx.
type Driver struct {
	ExecutablePrefix string
	Timeout          time.Duration
}

// Check takes input/output/answer files the caller has already written
// and invokes "<prefix>/<name> input output answer", interpreting exit 0 as
// OK, 1 as WA, 2 as a PE (treated as checker error), anything else as an
// unexpected checker error.
func (d *Driver) Check(ctx context.Context, name, inputPath, outputPath, answerPath string) (*Result, error) {
	binPath := d.ExecutablePrefix + string(os.PathSeparator) + name

	timeout := d.Timeout
	if timeout == 0 {
		timeout = 2 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, binPath, inputPath, outputPath, answerPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	detail := stderr.String()

	switch {
	case err == nil:
		return &Result{Status: "OK", Detail: detail}, nil
	default:
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return nil, fmt.Errorf("checker: run %s: %w", name, err)
		}
		switch exitErr.ExitCode() {
		case 1:
			return &Result{Status: "WA", Detail: detail}, nil
		case 2:
			return &Result{Status: "Checker PE", Detail: detail}, nil
		default:
			return &Result{Status: "Checker error", Detail: detail}, nil
		}
	}
}
