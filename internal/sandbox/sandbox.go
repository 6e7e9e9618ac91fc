// Package sandbox builds and drives the isolated child processes the
// judging pipeline runs user/reference/generator binaries in. It defines
// the Launcher interface (bwrap+RLW by default, an alternate Docker-backed
// launcher for operators who prefer container isolation) and the
// normalized SandboxOutcome every backend maps its result onto.
package sandbox

import (
	"context"
	"io"
	"syscall"
	"time"
)

// VerdictKind is the normalized result of one sandboxed execution.
type VerdictKind string

const (
	OK     VerdictKind = "OK"
	TLE    VerdictKind = "TLE"
	MLE    VerdictKind = "MLE"
	OLE    VerdictKind = "OLE"
	Killed VerdictKind = "KILLED"
	RE     VerdictKind = "RE"
	UKE    VerdictKind = "UKE"
)

// Outcome is the normalized result of one sandboxed execution: verdict
// plus raw exit/signal detail, resource accounting, and capped I/O.
type Outcome struct {
	Verdict    VerdictKind
	ExitCode   int
	Signal     syscall.Signal // 0 when the process was not signaled
	UserTimeUs uint64
	SysTimeUs  uint64
	PeakRSSKiB uint64
	Stdout     []byte
	Stderr     []byte
}

// TimeUsedMs is the wall-relevant CPU time to record on a TestCase: user
// time, the only component the judging pipeline attributes to the program.
func (o Outcome) TimeUsedMs() int64 {
	return int64(o.UserTimeUs / 1000)
}

// Quota bounds a single sandboxed execution. A Quota whose CPUSeconds is
// zero is replaced as a whole by the launcher's DefaultQuota; other zero
// fields are used as given (OutputCapBytes 0 leaves output uncapped).
type Quota struct {
	CPUSeconds     uint64
	ASBytes        uint64
	FSizeBytes     uint64
	OutputCapBytes int64
	WallClock      time.Duration // 0 => 2*CPUSeconds + 1s
}

func (q Quota) wallClockGuard() time.Duration {
	if q.WallClock > 0 {
		return q.WallClock
	}
	return 2*time.Duration(q.CPUSeconds)*time.Second + time.Second
}

// Mount is an additional bind mount the caller needs inside the sandbox
// beyond the WorkDir bound as /home (for compiles, testlib.h).
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// Profile selects a bwrap profile. C/C++ code execution only needs one,
// but a generator gets slightly looser output caps since it needs to
// emit the test input itself.
type Profile string

const (
	ProfileCodeExec  Profile = "code-exec"
	ProfileGenerator Profile = "generator"
	ProfileChecker   Profile = "checker"
)

// Request describes one sandboxed invocation.
type Request struct {
	Argv    []string
	Stdin   []byte
	Quota   Quota
	Mounts  []Mount
	Profile Profile
	WorkDir string // host directory bind-mounted as the sandbox's writable cwd
}

// Launcher runs one sandboxed program to completion and returns its
// normalized Outcome. Implementations must block until the child exits,
// enforce OutputCapBytes on captured stdout/stderr, and honor ctx
// cancellation by killing the child.
type Launcher interface {
	Launch(ctx context.Context, req Request) (*Outcome, error)
}

// verdictFromWaitStatus derives a verdict from a raw wait status:
// WIFEXITED -> OK (carrying exit code); WIFSIGNALED maps
// SIGXCPU->TLE, SIGXFSZ->OLE, SIGKILL->KILLED, anything else->RE.
func verdictFromWaitStatus(ws syscall.WaitStatus) (VerdictKind, int, syscall.Signal) {
	switch {
	case ws.Exited():
		return OK, ws.ExitStatus(), 0
	case ws.Signaled():
		sig := ws.Signal()
		switch sig {
		case syscall.SIGXCPU:
			return TLE, -1, sig
		case syscall.SIGXFSZ:
			return OLE, -1, sig
		case syscall.SIGKILL:
			return Killed, -1, sig
		default:
			return RE, -1, sig
		}
	default:
		return UKE, -1, 0
	}
}

// limitedWriter caps bytes retained from a stream; surplus is discarded
// without erroring out the underlying copy.
type limitedWriter struct {
	w       io.Writer
	limit   int64
	written int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	if lw.limit <= 0 {
		return lw.w.Write(p)
	}
	if lw.written >= lw.limit {
		return len(p), nil
	}
	remaining := lw.limit - lw.written
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := lw.w.Write(p)
	lw.written += int64(n)
	if err != nil {
		return n, err
	}
	return len(p), nil
}
