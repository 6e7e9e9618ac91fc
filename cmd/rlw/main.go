// Command rlw is the Resource-Limited Wrapper: a small static helper that
// the Sandbox Launcher bind-mounts into the bwrap container and runs as
// pid 1. It applies setrlimit to itself, execs the target under those
// limits, waits for it, and reports precise accounting (exit status, CPU
// time, peak RSS) out-of-band over a pre-opened pipe fd, because the
// bwrap/namespace boundary makes ordinary parent/child rusage unreliable.
//
// Usage: rlw <cpu_s> <as_bytes> <fsize_bytes> <sync_fd> <program> [argv...]
package main

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"

	"apex-diffrun/internal/rlw"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "rlw:", err)
		os.Exit(127)
	}
}

func run(args []string) error {
	if len(args) < 5 {
		return fmt.Errorf("usage: rlw cpu_s as_bytes fsize_bytes sync_fd program [argv...]")
	}

	cpuSeconds, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid cpu_s: %w", err)
	}
	asBytes, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid as_bytes: %w", err)
	}
	fsizeBytes, err := strconv.ParseUint(args[2], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid fsize_bytes: %w", err)
	}
	syncFd, err := strconv.Atoi(args[3])
	if err != nil {
		return fmt.Errorf("invalid sync_fd: %w", err)
	}
	program := args[4]
	argv := args[4:]

	if err := installLimits(cpuSeconds, asBytes, fsizeBytes); err != nil {
		return fmt.Errorf("install limits: %w", err)
	}

	syncPipe := os.NewFile(uintptr(syncFd), "rlw-sync")
	if syncPipe == nil {
		return fmt.Errorf("sync fd %d is not open", syncFd)
	}
	defer syncPipe.Close()

	cmd := exec.Command(program, argv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	runErr := cmd.Run()

	record := rlw.Record{ExitStatus: -1}
	if cmd.ProcessState != nil {
		if ws, ok := cmd.ProcessState.Sys().(syscall.WaitStatus); ok {
			record.ExitStatus = int32(ws)
		}
		if ru, ok := cmd.ProcessState.SysUsage().(*syscall.Rusage); ok {
			record.UserUs = uint64(ru.Utime.Sec)*1_000_000 + uint64(ru.Utime.Usec)
			record.SysUs = uint64(ru.Stime.Sec)*1_000_000 + uint64(ru.Stime.Usec)
			record.MaxRSSKiB = uint64(ru.Maxrss)
		}
	}

	if _, werr := syncPipe.Write(record.Encode()); werr != nil {
		return fmt.Errorf("write accounting record: %w", werr)
	}

	exitCode := 1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
		if exitCode < 0 {
			// Child died by signal; exec.Cmd reports -1 for that case.
			// Exit with 128+signal, the shell convention, so the outer
			// sandbox process sees a nonzero status that names the signal.
			if ws, ok := cmd.ProcessState.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
				os.Exit(128 + int(ws.Signal()))
			}
		}
	} else if runErr == nil {
		exitCode = 0
	}
	os.Exit(exitCode)
	return nil
}

// installLimits applies the rlimits the sandbox profile requests before
// exec: CPU, address space, output (file) size, and a stack at least as
// large as the address-space limit, plus disabling core dumps.
func installLimits(cpuSeconds, asBytes, fsizeBytes uint64) error {
	if err := unix.Setrlimit(unix.RLIMIT_CPU, &unix.Rlimit{Cur: cpuSeconds, Max: cpuSeconds}); err != nil {
		return fmt.Errorf("RLIMIT_CPU: %w", err)
	}
	if err := unix.Setrlimit(unix.RLIMIT_AS, &unix.Rlimit{Cur: asBytes, Max: asBytes}); err != nil {
		return fmt.Errorf("RLIMIT_AS: %w", err)
	}
	if err := unix.Setrlimit(unix.RLIMIT_FSIZE, &unix.Rlimit{Cur: fsizeBytes, Max: fsizeBytes}); err != nil {
		return fmt.Errorf("RLIMIT_FSIZE: %w", err)
	}
	if err := unix.Setrlimit(unix.RLIMIT_STACK, &unix.Rlimit{Cur: asBytes, Max: asBytes}); err != nil {
		return fmt.Errorf("RLIMIT_STACK: %w", err)
	}
	if err := unix.Setrlimit(unix.RLIMIT_CORE, &unix.Rlimit{Cur: 0, Max: 0}); err != nil {
		return fmt.Errorf("RLIMIT_CORE: %w", err)
	}
	return nil
}
