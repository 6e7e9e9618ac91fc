// Package diffrun implements the Diff Controller: the continuous stress
// loop and the rerun loop, stop-flag handling, and event emission around
// the Judge Step, generalizing the original diff run's StartDiff/RerunDiff/
// StopDiff routes (app/routes/diff.py) onto this module's sandbox,
// compiler, checker, and judge packages.
package diffrun

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"apex-diffrun/internal/checker"
	"apex-diffrun/internal/compiler"
	"apex-diffrun/internal/judge"
	"apex-diffrun/internal/metrics"
	"apex-diffrun/internal/sandbox"
	"apex-diffrun/internal/stopflags"
	"apex-diffrun/internal/store"
	"apex-diffrun/internal/stream"
	"apex-diffrun/pkg/models"
)

const minTests, maxTestsCap = 1, 1000

// Controller wires the scratch-directory lifecycle, compile stage, and
// per-iteration Judge Step around a Session's stored Code Blobs.
type Controller struct {
	Store         *store.SessionStore
	Sandbox       sandbox.Launcher
	Checker       *checker.Driver
	WorkspaceRoot string
	StopFlags     *stopflags.Set

	ProgQuota     sandbox.Quota
	CompilerQuota sandbox.Quota
	TestlibPath   string
}

// Start runs the continuous stress loop for sessionID: clear stop flag and
// prior test cases, compile user/reference/generator code, then iterate
// up to maxTests Judge Steps, stopping early on a mismatching verdict or
// a stop request.
func (c *Controller) Start(ctx context.Context, sink *stream.Sink, sessionID uint, maxTests int, checkerName string) {
	if maxTests < minTests {
		maxTests = minTests
	}
	if maxTests > maxTestsCap {
		maxTests = maxTestsCap
	}

	metrics.ActiveRuns.Inc()
	defer metrics.ActiveRuns.Dec()

	c.StopFlags.Remove(ctx, sessionID)

	session, err := c.Store.LoadSession(sessionID)
	if err != nil {
		c.emitError(sink, fmt.Errorf("load session: %w", err))
		return
	}

	if err := c.Store.ClearTestCases(sessionID); err != nil {
		c.emitError(sink, fmt.Errorf("clear test cases: %w", err))
		return
	}

	workDir, cleanup, err := c.newScratchDir(sessionID)
	if err != nil {
		c.emitError(sink, fmt.Errorf("scratch dir: %w", err))
		return
	}
	defer cleanup()

	driver := &compiler.Driver{Launcher: c.Sandbox, TestlibPath: c.TestlibPath, Quota: c.CompilerQuota}

	userArt, ok := c.compileStage(ctx, sink, driver, workDir, "user", session.UserCode)
	if !ok {
		return
	}
	stdArt, ok := c.compileStage(ctx, sink, driver, workDir, "reference", session.StdCode)
	if !ok {
		return
	}
	var genPath string
	if session.HasGen {
		genArt, ok := c.compileStage(ctx, sink, driver, workDir, "generator", session.GenCode)
		if !ok {
			return
		}
		genPath = genArt.ExecutablePath
	}

	step := &judge.Step{Launcher: c.Sandbox, Checker: c.Checker, CheckerName: checkerName, Quota: c.ProgQuota}

	for i := 0; i < maxTests; i++ {
		if err := sink.Emit(stream.EventStatus, map[string]interface{}{
			"status": fmt.Sprintf("Running test %d/%d", i+1, maxTests),
		}); err != nil {
			return
		}

		tc := &models.TestCase{SessionID: sessionID, CreatedAt: time.Now()}
		ok, err := step.Run(ctx, judge.Inputs{GeneratorPath: genPath, UserPath: userArt.ExecutablePath, StdPath: stdArt.ExecutablePath, WorkDir: workDir}, tc)
		if err != nil {
			c.emitError(sink, fmt.Errorf("judge step: %w", err))
			return
		}

		if saveErr := c.Store.SaveTestCase(tc); saveErr != nil {
			c.emitError(sink, fmt.Errorf("persist test case: %w", saveErr))
			return
		}
		metrics.TestCasesTotal.WithLabelValues(tc.Status).Inc()

		if emitErr := sink.Emit(stream.EventTestResult, map[string]interface{}{
			"test_num":  i,
			"test_case": tc,
		}); emitErr != nil {
			return
		}

		if !ok {
			break
		}
		if c.StopFlags.Contains(ctx, sessionID) {
			break
		}
	}

	_ = sink.Emit(stream.EventFinish, nil)
}

// Rerun replays a session's existing TestCases through freshly compiled
// user/reference binaries, mutating each case in place. No generator is
// compiled and no prior cases are deleted.
func (c *Controller) Rerun(ctx context.Context, sink *stream.Sink, sessionID uint, checkerName string) {
	metrics.ActiveRuns.Inc()
	defer metrics.ActiveRuns.Dec()

	c.StopFlags.Remove(ctx, sessionID)

	session, err := c.Store.LoadSession(sessionID)
	if err != nil {
		c.emitError(sink, fmt.Errorf("load session: %w", err))
		return
	}

	cases, err := c.Store.ListTestCases(sessionID)
	if err != nil {
		c.emitError(sink, fmt.Errorf("list test cases: %w", err))
		return
	}

	workDir, cleanup, err := c.newScratchDir(sessionID)
	if err != nil {
		c.emitError(sink, fmt.Errorf("scratch dir: %w", err))
		return
	}
	defer cleanup()

	driver := &compiler.Driver{Launcher: c.Sandbox, TestlibPath: c.TestlibPath, Quota: c.CompilerQuota}

	userArt, ok := c.compileStage(ctx, sink, driver, workDir, "user", session.UserCode)
	if !ok {
		return
	}
	stdArt, ok := c.compileStage(ctx, sink, driver, workDir, "reference", session.StdCode)
	if !ok {
		return
	}

	step := &judge.Step{Launcher: c.Sandbox, Checker: c.Checker, CheckerName: checkerName, Quota: c.ProgQuota}

	for i := range cases {
		tc := &cases[i]
		if err := sink.Emit(stream.EventStatus, map[string]interface{}{
			"status": fmt.Sprintf("Running test %d/%d", i+1, len(cases)),
		}); err != nil {
			return
		}

		ok, err := step.Run(ctx, judge.Inputs{UserPath: userArt.ExecutablePath, StdPath: stdArt.ExecutablePath, WorkDir: workDir, InputData: tc.InputData}, tc)
		if err != nil {
			c.emitError(sink, fmt.Errorf("judge step: %w", err))
			return
		}

		if saveErr := c.Store.SaveTestCase(tc); saveErr != nil {
			c.emitError(sink, fmt.Errorf("persist test case: %w", saveErr))
			return
		}
		metrics.TestCasesTotal.WithLabelValues(tc.Status).Inc()

		if emitErr := sink.Emit(stream.EventTestResult, map[string]interface{}{
			"test_num":  i,
			"test_case": tc,
		}); emitErr != nil {
			return
		}

		if !ok {
			break
		}
		if c.StopFlags.Contains(ctx, sessionID) {
			break
		}
	}

	_ = sink.Emit(stream.EventFinish, nil)
}

// Stop inserts sessionID into the Stop Flag Set. Idempotent.
func (c *Controller) Stop(ctx context.Context, sessionID uint) {
	c.StopFlags.Add(ctx, sessionID)
}

// compileStage emits the "Compiling <label> code" status, compiles blob,
// and on failure emits a terminal failed event returning ok=false.
func (c *Controller) compileStage(ctx context.Context, sink *stream.Sink, driver *compiler.Driver, workDir, label string, blob models.CodeBlob) (*compiler.Artifact, bool) {
	if err := sink.Emit(stream.EventStatus, map[string]interface{}{
		"status": fmt.Sprintf("Compiling %s code", label),
	}); err != nil {
		return nil, false
	}

	lang := compiler.Cpp
	if blob.Language == "c" {
		lang = compiler.C
	}

	art, err := driver.Compile(ctx, compiler.Blob{Language: lang, Standard: blob.Standard, Content: blob.Content}, workDir, label)
	if err != nil {
		var cerr *compiler.Error
		message := err.Error()
		detail := ""
		if asCompileError(err, &cerr) {
			message = fmt.Sprintf("%s code: %s", label, cerr.Kind)
			detail = cerr.Message
		}
		metrics.CompileFailuresTotal.WithLabelValues(label).Inc()
		_ = sink.Emit(stream.EventFailed, map[string]interface{}{"message": message, "detail": detail})
		return nil, false
	}
	return art, true
}

func asCompileError(err error, target **compiler.Error) bool {
	ce, ok := err.(*compiler.Error)
	if !ok {
		return false
	}
	*target = ce
	return true
}

func (c *Controller) emitError(sink *stream.Sink, err error) {
	_ = sink.Emit(stream.EventError, map[string]interface{}{"message": err.Error()})
}

// newScratchDir allocates a unique directory under WorkspaceRoot, owned
// solely by this Controller invocation and released on every exit path.
func (c *Controller) newScratchDir(sessionID uint) (dir string, cleanup func(), err error) {
	dir = filepath.Join(c.WorkspaceRoot, fmt.Sprintf("session-%d-%s", sessionID, uuid.NewString()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("mkdir scratch dir: %w", err)
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}
