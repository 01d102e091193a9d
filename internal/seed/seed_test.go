package seed

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-pcm/internal/shared"
)

const sampleFixture = `
users:
  - id: pm-1
    email: PM@Example.com
    password: s3cret
    role: ProjectManager
clients:
  - id: 1
    name: Acme
    email: billing@acme.test
projects:
  - id: 10
    client_id: 1
    name: Portal
    hourly_rate: 50
budgets:
  - project_id: 10
    total: "10000"
    labor: "6000"
    materials: "3000"
    other: "1000"
`

type execCall struct {
	sql  string
	args []any
}

type recordingExecer struct {
	calls  []execCall
	failOn string
}

func (r *recordingExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if r.failOn != "" && strings.Contains(sql, r.failOn) {
		return pgconn.CommandTag{}, errors.New("boom")
	}
	r.calls = append(r.calls, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func TestLoadFixture(t *testing.T) {
	f, err := Load(strings.NewReader(sampleFixture))
	require.NoError(t, err)
	require.Len(t, f.Users, 1)
	require.Len(t, f.Projects, 1)
	assert.Equal(t, "50", f.Projects[0].HourlyRate.String())
	assert.Equal(t, "0.75", f.Budgets[0].thresholds().Warning.String())
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load(strings.NewReader("clients:\n  - id: 1\n    name: Acme\n    vat: 20\n"))
	require.Error(t, err)
}

func TestLoadRejectsEmptyDocument(t *testing.T) {
	_, err := Load(strings.NewReader(""))
	require.Error(t, err)
}

func TestValidateReferences(t *testing.T) {
	cases := map[string]string{
		"bad role":        "users:\n  - {id: u1, email: a@b.c, password: x, role: Owner}\n",
		"dup email":       "users:\n  - {id: u1, email: a@b.c, password: x, role: Admin}\n  - {id: u2, email: A@B.C, password: y, role: Admin}\n",
		"unknown client":  "projects:\n  - {id: 1, client_id: 9, name: P, hourly_rate: 10}\n",
		"unknown project": "budgets:\n  - {project_id: 3, total: 100}\n",
		"bad thresholds":  "clients:\n  - {id: 1, name: C}\nprojects:\n  - {id: 1, client_id: 1, name: P, hourly_rate: 10}\nbudgets:\n  - {project_id: 1, total: 100, warning: 0.95, critical: 0.9}\n",
		"negative total":  "clients:\n  - {id: 1, name: C}\nprojects:\n  - {id: 1, client_id: 1, name: P, hourly_rate: 10}\nbudgets:\n  - {project_id: 1, total: -5}\n",
		"negative labor":  "clients:\n  - {id: 1, name: C}\nprojects:\n  - {id: 1, client_id: 1, name: P, hourly_rate: 10}\nbudgets:\n  - {project_id: 1, total: 100, labor: -1}\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(strings.NewReader(doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, shared.ErrValidation), "got %v", err)
		})
	}
}

func TestApplyHashesPasswordsAndCounts(t *testing.T) {
	f, err := Load(strings.NewReader(sampleFixture))
	require.NoError(t, err)

	ex := &recordingExecer{}
	summary, err := apply(context.Background(), ex, f, bcrypt.MinCost)
	require.NoError(t, err)
	assert.Equal(t, Summary{Users: 1, Clients: 1, Projects: 1, Budgets: 1}, summary)

	require.GreaterOrEqual(t, len(ex.calls), 4)
	userCall := ex.calls[0]
	require.Contains(t, userCall.sql, "INSERT INTO users")
	assert.Equal(t, "pm@example.com", userCall.args[1])
	hash, ok := userCall.args[2].(string)
	require.True(t, ok)
	assert.NotEqual(t, "s3cret", hash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")))
	assert.Equal(t, "ProjectManager", userCall.args[3])

	assert.Contains(t, ex.calls[2].sql, "INSERT INTO projects")
	assert.Equal(t, "Active", ex.calls[2].args[3])
}

func TestApplyLeavesOmittedCategoryBudgetsNull(t *testing.T) {
	f, err := Load(strings.NewReader("clients:\n  - {id: 1, name: C}\nprojects:\n  - {id: 1, client_id: 1, name: P, hourly_rate: 10}\nbudgets:\n  - {project_id: 1, total: 0, labor: 40}\n"))
	require.NoError(t, err)

	ex := &recordingExecer{}
	_, err = apply(context.Background(), ex, f, bcrypt.MinCost)
	require.NoError(t, err)

	var budgetCall execCall
	for _, c := range ex.calls {
		if strings.Contains(c.sql, "INSERT INTO project_budgets") {
			budgetCall = c
		}
	}
	require.NotEmpty(t, budgetCall.sql)
	assert.True(t, budgetCall.args[1].(decimal.Decimal).IsZero())
	labor := budgetCall.args[2].(decimal.NullDecimal)
	assert.True(t, labor.Valid)
	assert.Equal(t, "40", labor.Decimal.String())
	assert.False(t, budgetCall.args[3].(decimal.NullDecimal).Valid)
	assert.False(t, budgetCall.args[4].(decimal.NullDecimal).Valid)
}

func TestApplyStopsOnFailure(t *testing.T) {
	f, err := Load(strings.NewReader(sampleFixture))
	require.NoError(t, err)

	ex := &recordingExecer{failOn: "INSERT INTO projects"}
	summary, err := apply(context.Background(), ex, f, bcrypt.MinCost)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project 10")
	assert.Equal(t, 0, summary.Budgets)
}
