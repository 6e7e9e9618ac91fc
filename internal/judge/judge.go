// Package judge implements one test-case transition of the stress loop:
// generate an input, run the user and reference programs against it, run
// the checker, and annotate a TestCase with verdict and accounting. This
// generalizes the diff run's original single-iteration judge routine to
// the sandbox/checker drivers in this module.
package judge

import (
	"context"
	cryptorand "crypto/rand"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"apex-diffrun/internal/checker"
	"apex-diffrun/pkg/models"

	"apex-diffrun/internal/sandbox"
)

func cryptoRandRead(buf []byte) (int, error) {
	return cryptorand.Read(buf)
}

const genTokenLength = 16

// Step runs the four sub-stages of one iteration against a scratch dir
// and a set of already-compiled executables.
type Step struct {
	Launcher    sandbox.Launcher
	Checker     *checker.Driver
	CheckerName string
	Quota       sandbox.Quota
}

// Inputs names the compiled artifacts participating in one judge call.
// GeneratorPath is empty for rerun iterations.
type Inputs struct {
	GeneratorPath string
	UserPath      string
	StdPath       string
	WorkDir       string
	// InputData is reused verbatim when GeneratorPath is empty.
	InputData string
}

// Run executes one iteration, filling tc in place. It returns true only
// when every stage succeeded and the checker verdict was OK, matching the
// Python original's judge() return convention.
func (s *Step) Run(ctx context.Context, in Inputs, tc *models.TestCase) (bool, error) {
	inputData := in.InputData

	if in.GeneratorPath != "" {
		token, err := randomSeedToken(genTokenLength)
		if err != nil {
			return false, fmt.Errorf("judge: generate seed: %w", err)
		}
		outcome, err := s.Launcher.Launch(ctx, sandbox.Request{
			Argv:    []string{in.GeneratorPath, token},
			Quota:   s.Quota,
			Profile: sandbox.ProfileGenerator,
			WorkDir: in.WorkDir,
		})
		if err != nil {
			return false, fmt.Errorf("judge: run generator: %w", err)
		}
		if outcome.Verdict != sandbox.OK || outcome.ExitCode != 0 {
			tc.Status = "Generator " + verdictLabel(outcome)
			tc.Detail = detailFor(outcome)
			return false, nil
		}
		inputData = string(outcome.Stdout)
	}
	tc.InputData = inputData

	userOutcome, err := s.Launcher.Launch(ctx, sandbox.Request{
		Argv:    []string{in.UserPath},
		Stdin:   []byte(inputData),
		Quota:   s.Quota,
		Profile: sandbox.ProfileCodeExec,
		WorkDir: in.WorkDir,
	})
	if err != nil {
		return false, fmt.Errorf("judge: run user: %w", err)
	}
	tc.TimeUsedMs = userOutcome.TimeUsedMs()
	tc.MemoryUsedMiB = int64(userOutcome.PeakRSSKiB / 1024)
	if userOutcome.Verdict != sandbox.OK || userOutcome.ExitCode != 0 {
		tc.Status = "User " + verdictLabel(userOutcome)
		tc.Detail = detailFor(userOutcome)
		return false, nil
	}
	tc.UserOutput = string(userOutcome.Stdout)

	stdOutcome, err := s.Launcher.Launch(ctx, sandbox.Request{
		Argv:    []string{in.StdPath},
		Stdin:   []byte(inputData),
		Quota:   s.Quota,
		Profile: sandbox.ProfileCodeExec,
		WorkDir: in.WorkDir,
	})
	if err != nil {
		return false, fmt.Errorf("judge: run reference: %w", err)
	}
	if stdOutcome.Verdict != sandbox.OK || stdOutcome.ExitCode != 0 {
		tc.Status = "Std " + verdictLabel(stdOutcome)
		tc.Detail = detailFor(stdOutcome)
		return false, nil
	}
	tc.StdOutput = string(stdOutcome.Stdout)

	inPath, outPath, ansPath, cleanup, err := spillCheckerFiles(in.WorkDir, inputData, tc.UserOutput, tc.StdOutput)
	if err != nil {
		return false, fmt.Errorf("judge: spill checker files: %w", err)
	}
	defer cleanup()

	result, err := s.Checker.Check(ctx, s.CheckerName, inPath, outPath, ansPath)
	if err != nil {
		return false, fmt.Errorf("judge: run checker: %w", err)
	}
	tc.Status = result.Status
	tc.Detail = result.Detail

	if result.Status != "OK" {
		return false, nil
	}
	return true, nil
}

const seedAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// randomSeedToken produces an n-character alphabetic token, passed as the
// sole argv entry to testlib-style generators acting as their PRNG seed.
func randomSeedToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := cryptoRandRead(buf); err != nil {
		return "", err
	}
	token := make([]byte, n)
	for i, b := range buf {
		token[i] = seedAlphabet[int(b)%len(seedAlphabet)]
	}
	return string(token), nil
}

// detailFor reports the signal name for RE verdicts, matching the
// original's Signals(code).name formatting; other verdicts carry the raw
// exit code.
func detailFor(o *sandbox.Outcome) string {
	if o.Verdict == sandbox.RE && o.Signal != 0 {
		return unix.SignalName(o.Signal)
	}
	return fmt.Sprintf("exit code %d", o.ExitCode)
}

// verdictLabel is the verdict text placed after a status prefix: the
// verdict kind, with the signal name appended for RE, e.g. "RE(SIGSEGV)".
func verdictLabel(o *sandbox.Outcome) string {
	if o.Verdict == sandbox.RE && o.Signal != 0 {
		return fmt.Sprintf("%s(%s)", o.Verdict, unix.SignalName(o.Signal))
	}
	return string(o.Verdict)
}

func spillCheckerFiles(workDir, input, userOutput, stdOutput string) (inPath, outPath, ansPath string, cleanup func(), err error) {
	writeTemp := func(prefix, content string) (string, error) {
		f, err := os.CreateTemp(workDir, prefix+"-*")
		if err != nil {
			return "", err
		}
		defer f.Close()
		if _, err := f.WriteString(content); err != nil {
			return "", err
		}
		return f.Name(), nil
	}

	if inPath, err = writeTemp("input", input); err != nil {
		return "", "", "", nil, err
	}
	if outPath, err = writeTemp("output", userOutput); err != nil {
		os.Remove(inPath)
		return "", "", "", nil, err
	}
	if ansPath, err = writeTemp("answer", stdOutput); err != nil {
		os.Remove(inPath)
		os.Remove(outPath)
		return "", "", "", nil, err
	}

	cleanup = func() {
		os.Remove(inPath)
		os.Remove(outPath)
		os.Remove(ansPath)
	}
	return inPath, outPath, ansPath, cleanup, nil
}
