package judge

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apex-diffrun/internal/checker"
	"apex-diffrun/internal/sandbox"
	"apex-diffrun/pkg/models"
)

type scriptedLauncher struct {
	outcomes []*sandbox.Outcome
	calls    int
}

func (s *scriptedLauncher) Launch(ctx context.Context, req sandbox.Request) (*sandbox.Outcome, error) {
	o := s.outcomes[s.calls]
	s.calls++
	return o, nil
}

func TestRunAllPass(t *testing.T) {
	dir := t.TempDir()
	launcher := &scriptedLauncher{outcomes: []*sandbox.Outcome{
		{Verdict: sandbox.OK, ExitCode: 0, Stdout: []byte("3 5")},
		{Verdict: sandbox.OK, ExitCode: 0, Stdout: []byte("8")},
		{Verdict: sandbox.OK, ExitCode: 0, Stdout: []byte("8")},
	}}
	checkerDir := t.TempDir()
	writeOKChecker(t, checkerDir)

	step := &Step{Launcher: launcher, Checker: &checker.Driver{ExecutablePrefix: checkerDir}, CheckerName: "wcmp"}
	tc := &models.TestCase{}
	ok, err := step.Run(context.Background(), Inputs{GeneratorPath: "/home/gen", UserPath: "/home/user", StdPath: "/home/std", WorkDir: dir}, tc)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "OK", tc.Status)
	assert.Equal(t, "3 5", tc.InputData)
}

func TestRunUserFailureStopsPipeline(t *testing.T) {
	dir := t.TempDir()
	launcher := &scriptedLauncher{outcomes: []*sandbox.Outcome{
		{Verdict: sandbox.OK, ExitCode: 0, Stdout: []byte("1 1")},
		{Verdict: sandbox.TLE},
	}}
	step := &Step{Launcher: launcher}
	tc := &models.TestCase{}
	ok, err := step.Run(context.Background(), Inputs{GeneratorPath: "/home/gen", UserPath: "/home/user", StdPath: "/home/std", WorkDir: dir}, tc)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "User TLE", tc.Status)
}

func TestRunRerunWithoutGenerator(t *testing.T) {
	dir := t.TempDir()
	checkerDir := t.TempDir()
	writeOKChecker(t, checkerDir)
	launcher := &scriptedLauncher{outcomes: []*sandbox.Outcome{
		{Verdict: sandbox.OK, ExitCode: 0, Stdout: []byte("8")},
		{Verdict: sandbox.OK, ExitCode: 0, Stdout: []byte("8")},
	}}
	step := &Step{Launcher: launcher, Checker: &checker.Driver{ExecutablePrefix: checkerDir}, CheckerName: "wcmp"}
	tc := &models.TestCase{}
	ok, err := step.Run(context.Background(), Inputs{UserPath: "/home/user", StdPath: "/home/std", WorkDir: dir, InputData: "3 5"}, tc)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "3 5", tc.InputData)
}

func writeOKChecker(t *testing.T, dir string) {
	t.Helper()
	path := dir + "/wcmp"
	script := "#!/bin/sh\nexit 0\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
}
