package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"

	"apex-diffrun/internal/logging"
)

// DockerLauncher is the alternate Launcher for operators who prefer
// container isolation over bwrap namespaces. It runs a single pre-built
// executable plus stdin inside a throwaway container, adapted from this
// repo's earlier sandbox-v2 Docker executor. Of the Quota it applies the
// wall-clock guard, ASBytes as the container memory limit, and
// OutputCapBytes on captured logs; FSizeBytes is not applied, CPU time is
// bounded only by the wall-clock guard, and no accounting record is read.
type DockerLauncher struct {
	cfg   Config
	image string
	cli   *client.Client
}

// NewDockerLauncher dials the local Docker daemon via the standard
// DOCKER_HOST/DOCKER_* environment variables.
func NewDockerLauncher(cfg Config, image string) (*DockerLauncher, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("sandbox: docker client init: %w", err)
	}
	if image == "" {
		image = "diffrun-runtime:latest"
	}
	return &DockerLauncher{cfg: cfg, image: image, cli: cli}, nil
}

func (l *DockerLauncher) Close() error {
	return l.cli.Close()
}

func (l *DockerLauncher) Launch(ctx context.Context, req Request) (*Outcome, error) {
	quota := req.Quota
	if quota.CPUSeconds == 0 {
		quota = l.cfg.DefaultQuota
	}

	runCtx, cancel := context.WithTimeout(ctx, quota.wallClockGuard())
	defer cancel()

	mounts := make([]mount.Mount, 0, len(req.Mounts)+1)
	mounts = append(mounts, mount.Mount{
		Type:     mount.TypeBind,
		Source:   req.WorkDir,
		Target:   "/home",
		ReadOnly: false,
	})
	for _, m := range req.Mounts {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}

	hostCfg := &container.HostConfig{
		Mounts:      mounts,
		Resources:   container.Resources{NanoCPUs: int64(quota.CPUSeconds) * 1_000_000_000, Memory: int64(quota.ASBytes)},
		NetworkMode: "none",
		AutoRemove:  false,
	}

	created, err := l.cli.ContainerCreate(runCtx, &container.Config{
		Image:        l.image,
		Cmd:          req.Argv,
		WorkingDir:   "/home",
		OpenStdin:    true,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
	}, hostCfg, nil, nil, "diffrun-"+uuid.New().String())
	if err != nil {
		return nil, fmt.Errorf("sandbox: create container: %w", err)
	}
	defer func() {
		_ = l.cli.ContainerRemove(context.Background(), created.ID, container.RemoveOptions{Force: true})
	}()

	if err := l.writeStdin(runCtx, created.ID, req.Stdin); err != nil {
		return nil, fmt.Errorf("sandbox: attach stdin: %w", err)
	}

	started := time.Now()
	if err := l.cli.ContainerStart(runCtx, created.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("sandbox: start container: %w", err)
	}

	statusCh, errCh := l.cli.ContainerWait(runCtx, created.ID, container.WaitConditionNotRunning)
	var exitCode int64
	select {
	case err := <-errCh:
		if runCtx.Err() == context.DeadlineExceeded {
			_ = l.cli.ContainerKill(context.Background(), created.ID, "KILL")
			return &Outcome{Verdict: TLE}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("sandbox: wait container: %w", err)
		}
	case status := <-statusCh:
		exitCode = status.StatusCode
	}

	stdout, stderr, capErr := l.readLogs(context.Background(), created.ID, quota.OutputCapBytes)
	if capErr != nil {
		logging.S().Warnw("sandbox: docker log capture failed", "err", capErr)
	}

	inspect, inspectErr := l.cli.ContainerInspect(context.Background(), created.ID)
	verdict := OK
	if exitCode != 0 {
		verdict = RE
	}
	if inspectErr == nil && inspect.State != nil && inspect.State.OOMKilled {
		verdict = MLE
	}

	return &Outcome{
		Verdict:    verdict,
		ExitCode:   int(exitCode),
		UserTimeUs: uint64(time.Since(started).Microseconds()),
		Stdout:     stdout,
		Stderr:     stderr,
	}, nil
}

func (l *DockerLauncher) writeStdin(ctx context.Context, containerID string, stdin []byte) error {
	resp, err := l.cli.ContainerAttach(ctx, containerID, container.AttachOptions{Stream: true, Stdin: true})
	if err != nil {
		return err
	}
	defer resp.Close()
	if len(stdin) > 0 {
		if _, err := io.Copy(resp.Conn, bytes.NewReader(stdin)); err != nil {
			return err
		}
	}
	return resp.CloseWrite()
}

func (l *DockerLauncher) readLogs(ctx context.Context, containerID string, cap int64) ([]byte, []byte, error) {
	out, err := l.cli.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return nil, nil, err
	}
	defer out.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	stdoutW := &limitedWriter{w: &stdoutBuf, limit: cap}
	stderrW := &limitedWriter{w: &stderrBuf, limit: cap}
	if _, err := stdcopy.StdCopy(stdoutW, stderrW, out); err != nil && err != io.EOF {
		return stdoutBuf.Bytes(), stderrBuf.Bytes(), err
	}
	return stdoutBuf.Bytes(), stderrBuf.Bytes(), nil
}
