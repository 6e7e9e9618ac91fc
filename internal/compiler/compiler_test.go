package compiler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apex-diffrun/internal/sandbox"
)

type fakeLauncher struct {
	outcome *sandbox.Outcome
	err     error
	lastReq sandbox.Request
}

func (f *fakeLauncher) Launch(ctx context.Context, req sandbox.Request) (*sandbox.Outcome, error) {
	f.lastReq = req
	return f.outcome, f.err
}

func TestCompileSuccess(t *testing.T) {
	fake := &fakeLauncher{outcome: &sandbox.Outcome{Verdict: sandbox.OK, ExitCode: 0, Stderr: []byte("warn")}}
	d := &Driver{Launcher: fake, TestlibPath: "/opt/testlib.h"}

	art, err := d.Compile(context.Background(), Blob{Language: Cpp, Standard: "c++17", Content: "int main(){}"}, t.TempDir(), "user")
	require.NoError(t, err)
	assert.Equal(t, "warn", art.Warnings)
	assert.Contains(t, fake.lastReq.Argv, "g++")
	assert.Contains(t, fake.lastReq.Argv, "-std=c++17")
	assert.Contains(t, fake.lastReq.Argv, "/home/code_user.cpp")
	assert.Contains(t, fake.lastReq.Argv, "/home/user_exe")
}

func TestCompileErrorOnNonzeroExit(t *testing.T) {
	fake := &fakeLauncher{outcome: &sandbox.Outcome{Verdict: sandbox.OK, ExitCode: 1, Stderr: []byte("syntax error")}}
	d := &Driver{Launcher: fake}

	_, err := d.Compile(context.Background(), Blob{Language: C, Content: "bad"}, t.TempDir(), "user")
	require.Error(t, err)
	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "Compile Error", cerr.Kind)
	assert.Equal(t, "syntax error", cerr.Message)
}

func TestCompileErrorOnSandboxFailure(t *testing.T) {
	fake := &fakeLauncher{outcome: &sandbox.Outcome{Verdict: sandbox.TLE}}
	d := &Driver{Launcher: fake}

	_, err := d.Compile(context.Background(), Blob{Language: C, Content: "x"}, t.TempDir(), "reference")
	require.Error(t, err)
	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "Compiler TLE", cerr.Kind)
}

func TestCompileUnknownLanguage(t *testing.T) {
	d := &Driver{Launcher: &fakeLauncher{}}
	_, err := d.Compile(context.Background(), Blob{Language: "pascal", Content: "x"}, t.TempDir(), "user")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfigError))
}
