// Package compiler drives gcc/g++ invocations through the sandbox package,
// staging source in a scratch directory and mapping the sandboxed outcome
// onto Compiled or CompileError.
package compiler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"apex-diffrun/internal/sandbox"
)

// Language is one of the two supported source languages; anything
// beyond C/C++ is out of scope.
type Language string

const (
	C   Language = "c"
	Cpp Language = "cpp"
)

// Blob is an immutable source unit: language, standard flag (e.g. "c++17"),
// and UTF-8 content.
type Blob struct {
	Language Language
	Standard string
	Content  string
}

// Artifact is a successfully produced executable plus any compiler warning
// output, truncated to 1 KiB
type Artifact struct {
	ExecutablePath string
	Warnings       string
}

// Error reports a compile failure. Kind is "Compile Error" when the
// compiler ran to completion and exited with any nonzero code (not just
// exit 1), and "Compiler <verdict>" when the sandbox verdict was not OK
// (the compiler was terminated abnormally).
type Error struct {
	Kind    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

const warningCap = 1024

// Driver compiles Blobs via a sandbox.Launcher.
type Driver struct {
	Launcher    sandbox.Launcher
	TestlibPath string
	Quota       sandbox.Quota
}

// Compile stages blob.Content into workDir/code_<name>.<ext> and compiles
// it to workDir/<name>_exe, invoking gcc or g++ under compile-class limits
// with testlib.h bind-mounted read-only at /home/testlib.h. The source and
// output path are reached through workDir, which the sandbox binds
// writable as /home; the source file is not mounted read-only.
// name distinguishes the user, reference, and generator artifacts so a
// Controller compiling all three into the same workDir never has one
// compile overwrite another's executable.
func (d *Driver) Compile(ctx context.Context, blob Blob, workDir, name string) (*Artifact, error) {
	ext, compiler, langFlag, err := toolchain(blob.Language)
	if err != nil {
		return nil, err
	}

	srcName := "code_" + name + ext
	exeName := name + "_exe"

	srcPath := filepath.Join(workDir, srcName)
	if err := os.WriteFile(srcPath, []byte(blob.Content), 0o644); err != nil {
		return nil, fmt.Errorf("compiler: write source: %w", err)
	}
	outPath := filepath.Join(workDir, exeName)

	standard := blob.Standard
	if standard == "" {
		standard = defaultStandard(blob.Language)
	}

	req := sandbox.Request{
		Argv: []string{
			compiler,
			"-x", langFlag,
			"-std=" + standard,
			"-O2",
			"/home/" + srcName,
			"-o", "/home/" + exeName,
		},
		Quota:   d.Quota,
		Profile: sandbox.ProfileCodeExec,
		WorkDir: workDir,
		Mounts: []sandbox.Mount{
			{Source: d.TestlibPath, Target: "/home/testlib.h", ReadOnly: true},
		},
	}

	outcome, err := d.Launcher.Launch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("compiler: launch: %w", err)
	}

	switch {
	case outcome.Verdict == sandbox.OK && outcome.ExitCode == 0:
		return &Artifact{ExecutablePath: outPath, Warnings: truncate(string(outcome.Stderr), warningCap)}, nil
	case outcome.Verdict == sandbox.OK:
		return nil, &Error{Kind: "Compile Error", Message: truncate(string(outcome.Stderr), warningCap)}
	default:
		return nil, &Error{Kind: fmt.Sprintf("Compiler %s", outcome.Verdict), Message: truncate(string(outcome.Stderr), warningCap)}
	}
}

func toolchain(lang Language) (ext, compiler, langFlag string, err error) {
	switch lang {
	case C:
		return ".c", "gcc", "c", nil
	case Cpp:
		return ".cpp", "g++", "c++", nil
	default:
		return "", "", "", fmt.Errorf("compiler: unknown language %q: %w", lang, ErrConfigError)
	}
}

func defaultStandard(lang Language) string {
	if lang == Cpp {
		return "c++17"
	}
	return "c17"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// ErrConfigError marks a ConfigError: unknown language,
// missing binary, malformed config.
var ErrConfigError = fmt.Errorf("config error")
