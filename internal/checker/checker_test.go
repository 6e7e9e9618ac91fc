package checker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFakeChecker writes a tiny shell-script "checker" named name into dir
// that always exits with exitCode.
func writeFakeChecker(t *testing.T, dir, name string, exitCode int) {
	t.Helper()
	script := "#!/bin/sh\nexit " + itoa(exitCode) + "\n"
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func TestCheckOK(t *testing.T) {
	dir := t.TempDir()
	writeFakeChecker(t, dir, "wcmp", 0)
	d := &Driver{ExecutablePrefix: dir}

	res, err := d.Check(context.Background(), "wcmp", "in", "out", "ans")
	require.NoError(t, err)
	assert.Equal(t, "OK", res.Status)
}

func TestCheckWA(t *testing.T) {
	dir := t.TempDir()
	writeFakeChecker(t, dir, "wcmp", 1)
	d := &Driver{ExecutablePrefix: dir}

	res, err := d.Check(context.Background(), "wcmp", "in", "out", "ans")
	require.NoError(t, err)
	assert.Equal(t, "WA", res.Status)
}

func TestCheckOtherNonzeroIsCheckerError(t *testing.T) {
	dir := t.TempDir()
	writeFakeChecker(t, dir, "wcmp", 3)
	d := &Driver{ExecutablePrefix: dir}

	res, err := d.Check(context.Background(), "wcmp", "in", "out", "ans")
	require.NoError(t, err)
	assert.Equal(t, "Checker error", res.Status)
}
