package diffrun

import (
	"context"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apex-diffrun/internal/checker"
	"apex-diffrun/internal/sandbox"
	"apex-diffrun/internal/stopflags"
	"apex-diffrun/internal/store"
	"apex-diffrun/internal/stream"
	"apex-diffrun/pkg/models"
)

type fakeLauncher struct {
	outcomes map[string]*sandbox.Outcome // keyed by argv[0]
	order    []string
}

func (f *fakeLauncher) Launch(ctx context.Context, req sandbox.Request) (*sandbox.Outcome, error) {
	f.order = append(f.order, req.Argv[0])
	if o, ok := f.outcomes[req.Argv[0]]; ok {
		return o, nil
	}
	return &sandbox.Outcome{Verdict: sandbox.OK, ExitCode: 0}, nil
}

func newTestController(t *testing.T) (*Controller, uint) {
	t.Helper()
	db, err := store.Open(store.Config{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)

	sessionStore := &store.SessionStore{DB: db}

	session := &models.Session{
		UserCode: models.CodeBlob{Language: "cpp", Standard: "c++17", Content: "int main(){}"},
		StdCode:  models.CodeBlob{Language: "cpp", Standard: "c++17", Content: "int main(){}"},
		GenCode:  models.CodeBlob{Language: "cpp", Standard: "c++17", Content: "int main(){}"},
		HasGen:   true,
	}
	require.NoError(t, db.Create(session).Error)

	checkerDir := t.TempDir()
	writeOKChecker(t, checkerDir)

	launcher := &fakeLauncher{outcomes: map[string]*sandbox.Outcome{
		"gcc": {Verdict: sandbox.OK, ExitCode: 0},
		"g++": {Verdict: sandbox.OK, ExitCode: 0},
	}}

	ctrl := &Controller{
		Store:         sessionStore,
		Sandbox:       launcher,
		Checker:       &checker.Driver{ExecutablePrefix: checkerDir},
		WorkspaceRoot: t.TempDir(),
		StopFlags:     stopflags.New(nil),
	}
	return ctrl, session.ID
}

func writeOKChecker(t *testing.T, dir string) {
	t.Helper()
	path := dir + "/wcmp"
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755))
}

func TestControllerStartAllPass(t *testing.T) {
	ctrl, sessionID := newTestController(t)
	c, rec := newGinContext()
	sink := stream.NewSink(c)

	ctrl.Start(context.Background(), sink, sessionID, 2, "wcmp")

	body := rec.Body.String()
	assert.Contains(t, body, "event: finish")
	assert.Contains(t, body, "event: test_result")

	cases, err := ctrl.Store.ListTestCases(sessionID)
	require.NoError(t, err)
	assert.Len(t, cases, 2)
	for _, tc := range cases {
		assert.Equal(t, "OK", tc.Status)
	}
}

func TestControllerStartClearsStaleStopFlag(t *testing.T) {
	ctrl, sessionID := newTestController(t)
	ctrl.Stop(context.Background(), sessionID)
	require.True(t, ctrl.StopFlags.Contains(context.Background(), sessionID))

	c, rec := newGinContext()
	sink := stream.NewSink(c)
	ctrl.Start(context.Background(), sink, sessionID, 3, "wcmp")
	_ = rec

	cases, err := ctrl.Store.ListTestCases(sessionID)
	require.NoError(t, err)
	assert.Len(t, cases, 3, "Start clears the stale stop flag before running any iteration")
	assert.False(t, ctrl.StopFlags.Contains(context.Background(), sessionID))
}


func newGinContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	return c, rec
}
