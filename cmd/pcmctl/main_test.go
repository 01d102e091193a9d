package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pcm/internal/app"
	"github.com/odyssey-erp/odyssey-pcm/internal/auth"
	"github.com/odyssey-erp/odyssey-pcm/internal/seed"
	"github.com/odyssey-erp/odyssey-pcm/internal/shared"
)

const testSecret = "pcmctl-test-secret"

func testEnv(out *bytes.Buffer, redisAddr string) *env {
	return &env{
		out: out,
		loadConfig: func() (*app.Config, error) {
			return &app.Config{
				JWTSecret: testSecret,
				JWTTTL:    time.Hour,
				LogFormat: "json",
				LogLevel:  "error",
				RedisAddr: redisAddr,
			}, nil
		},
	}
}

func run(t *testing.T, e *env, args ...string) error {
	t.Helper()
	root := newRootCmdWithEnv(e)
	root.SetArgs(args)
	return root.Execute()
}

func TestTokenIssueRoundTrips(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(t, testEnv(&out, ""), "token", "issue", "--user", "dev-7", "--role", "developer"))

	var token auth.Token
	require.NoError(t, json.Unmarshal(out.Bytes(), &token))
	assert.Equal(t, "Bearer", token.TokenType)

	issuer, err := auth.NewIssuer(testSecret, time.Hour)
	require.NoError(t, err)
	actor, err := issuer.Verify(token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, shared.Actor{ID: "dev-7", Role: shared.RoleDeveloper}, actor)
}

func TestTokenIssueRejectsUnknownRole(t *testing.T) {
	var out bytes.Buffer
	err := run(t, testEnv(&out, ""), "token", "issue", "--user", "dev-7", "--role", "Owner")
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))
	assert.Empty(t, out.String())
}

func TestTokenIssueRequiresUser(t *testing.T) {
	var out bytes.Buffer
	require.Error(t, run(t, testEnv(&out, ""), "token", "issue"))
}

func TestConfigErrorsSurface(t *testing.T) {
	var out bytes.Buffer
	e := &env{out: &out, loadConfig: func() (*app.Config, error) {
		return nil, errors.New("jwt secret must be provided")
	}}
	err := run(t, e, "invoice", "preview-number")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func writeFixture(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestSeedDryRun(t *testing.T) {
	path := writeFixture(t, `
clients:
  - {id: 1, name: Acme, email: ap@acme.test}
projects:
  - {id: 1, client_id: 1, name: Portal, hourly_rate: 50}
  - {id: 2, client_id: 1, name: App, hourly_rate: 80}
budgets:
  - {project_id: 1, total: 5000}
`)
	var out bytes.Buffer
	require.NoError(t, run(t, testEnv(&out, ""), "seed", "--file", path, "--dry-run"))

	var summary seed.Summary
	require.NoError(t, json.Unmarshal(out.Bytes(), &summary))
	assert.Equal(t, seed.Summary{Clients: 1, Projects: 2, Budgets: 1}, summary)
}

func TestSeedRejectsBrokenFixture(t *testing.T) {
	path := writeFixture(t, "projects:\n  - {id: 1, client_id: 4, name: Orphan, hourly_rate: 10}\n")
	var out bytes.Buffer
	err := run(t, testEnv(&out, ""), "seed", "--file", path, "--dry-run")
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))
}

func TestJobsEnqueueReconcile(t *testing.T) {
	mr := miniredis.RunT(t)
	var out bytes.Buffer
	require.NoError(t, run(t, testEnv(&out, mr.Addr()), "jobs", "enqueue-reconcile", "--project", "42"))

	var task enqueuedTask
	require.NoError(t, json.Unmarshal(out.Bytes(), &task))
	assert.Equal(t, "budget:reconcile", task.Type)
	assert.Equal(t, "default", task.Queue)
	assert.NotEmpty(t, task.ID)
}
