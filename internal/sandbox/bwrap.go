package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"apex-diffrun/internal/logging"
	"apex-diffrun/internal/metrics"
	"apex-diffrun/internal/rlw"
)

// BwrapLauncher is the default Launcher: it shells out to bwrap to build a
// throwaway mount/pid/net namespace, binds the RLW helper in as pid 1, and
// lets RLW apply rlimits and exec the real program.
type BwrapLauncher struct {
	cfg Config
}

// NewBwrapLauncher constructs a BwrapLauncher from cfg. RLWExecutable must
// be an absolute path to the cmd/rlw binary; SandboxExecutable defaults to
// "bwrap" resolved via $PATH.
func NewBwrapLauncher(cfg Config) (*BwrapLauncher, error) {
	if cfg.RLWExecutable == "" {
		return nil, fmt.Errorf("sandbox: RLIMIT_WRAPPER_EXECUTABLE is not configured")
	}
	return &BwrapLauncher{cfg: cfg}, nil
}

func (l *BwrapLauncher) Launch(ctx context.Context, req Request) (*Outcome, error) {
	quota := req.Quota
	if quota.CPUSeconds == 0 {
		quota = l.cfg.DefaultQuota
	}
	outputCap := quota.OutputCapBytes
	if req.Profile == ProfileGenerator && l.cfg.GeneratorOutputCap > outputCap {
		outputCap = l.cfg.GeneratorOutputCap
	}

	pipeRead, pipeWrite, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("sandbox: open accounting pipe: %w", err)
	}
	defer pipeRead.Close()

	argv := l.buildArgv(req, quota)

	runCtx, cancel := context.WithTimeout(ctx, quota.wallClockGuard())
	defer cancel()

	cmd := exec.CommandContext(runCtx, l.cfg.SandboxExecutable, argv...)
	cmd.Dir = req.WorkDir
	cmd.ExtraFiles = []*os.File{pipeWrite}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if len(req.Stdin) > 0 {
		cmd.Stdin = bytes.NewReader(req.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdout, limit: outputCap}
	cmd.Stderr = &limitedWriter{w: &stderr, limit: outputCap}

	startErr := cmd.Start()
	pipeWrite.Close() // parent's copy; child (bwrap) retains its inherited one
	if startErr != nil {
		return nil, fmt.Errorf("sandbox: start bwrap: %w", startErr)
	}

	waitErr := cmd.Wait()
	if runCtx.Err() == context.DeadlineExceeded {
		killProcessGroup(cmd.Process.Pid)
		return &Outcome{Verdict: TLE, Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}, nil
	}
	if ctx.Err() == context.Canceled {
		killProcessGroup(cmd.Process.Pid)
		return &Outcome{Verdict: Killed, Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}, nil
	}

	record, recErr := rlw.Decode(pipeRead)
	if recErr != nil {
		logging.S().Warnw("sandbox: no accounting record from rlw", "err", recErr, "waitErr", waitErr)
		return &Outcome{Verdict: UKE, Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}, nil
	}

	verdict, exitCode, signal := verdictFromWaitStatus(syscall.WaitStatus(record.ExitStatus))
	metrics.SandboxLaunchesTotal.WithLabelValues(string(verdict)).Inc()
	return &Outcome{
		Verdict:    verdict,
		ExitCode:   exitCode,
		Signal:     signal,
		UserTimeUs: record.UserUs,
		SysTimeUs:  record.SysUs,
		PeakRSSKiB: record.MaxRSSKiB,
		Stdout:     stdout.Bytes(),
		Stderr:     stderr.Bytes(),
	}, nil
}

// rlwSandboxPath is the fixed path the RLW binary is bind-mounted at
// inside the sandbox, independent of where it lives on the host.
const rlwSandboxPath = "/rlw"

// buildArgv assembles the bwrap command line: a minimal read-only root,
// a writable workdir bound in as /home, the RLW binary bind-mounted at a
// fixed path, full namespace unshare, and the caller's extra Mounts,
// terminated by the RLW invocation itself.
func (l *BwrapLauncher) buildArgv(req Request, quota Quota) []string {
	argv := []string{
		"--ro-bind", "/usr", "/usr",
		"--symlink", "usr/lib", "/lib",
		"--symlink", "usr/lib64", "/lib64",
		"--symlink", "usr/bin", "/bin",
		"--proc", "/proc",
		"--dev", "/dev",
		"--bind", req.WorkDir, "/home",
		"--ro-bind", l.cfg.RLWExecutable, rlwSandboxPath,
		"--chdir", "/home",
		"--unshare-all",
		"--die-with-parent",
		"--new-session",
	}

	for _, m := range req.Mounts {
		flag := "--bind"
		if m.ReadOnly {
			flag = "--ro-bind"
		}
		argv = append(argv, flag, m.Source, m.Target)
	}

	// fd 3 is the first entry of cmd.ExtraFiles in the bwrap process; RLW
	// runs as pid 1 inside the new namespace and inherits it unchanged.
	syncFd := 3
	argv = append(argv, "--")
	argv = append(argv, rlwSandboxPath,
		strconv.FormatUint(quota.CPUSeconds, 10),
		strconv.FormatUint(quota.ASBytes, 10),
		strconv.FormatUint(quota.FSizeBytes, 10),
		strconv.Itoa(syncFd),
	)
	argv = append(argv, req.Argv...)
	return argv
}

func killProcessGroup(pid int) {
	if pid <= 0 {
		return
	}
	pgid, err := syscall.Getpgid(pid)
	if err != nil {
		return
	}
	_ = syscall.Kill(-pgid, syscall.SIGKILL)
}
