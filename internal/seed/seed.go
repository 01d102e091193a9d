// Package seed loads YAML fixtures into the project-control schema.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/odyssey-erp/odyssey-pcm/internal/budget"
	"github.com/odyssey-erp/odyssey-pcm/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pcm/internal/shared"
)

// Fixture is the document accepted by `pcmctl seed --file`.
type Fixture struct {
	Users    []User    `yaml:"users"`
	Clients  []Client  `yaml:"clients"`
	Projects []Project `yaml:"projects"`
	Budgets  []Budget  `yaml:"budgets"`
}

// User seeds a login. Password is hashed before it reaches the database.
type User struct {
	ID       string `yaml:"id"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

// Client seeds a billable customer.
type Client struct {
	ID    int64  `yaml:"id"`
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

// Project seeds a project owned by a client.
type Project struct {
	ID         int64           `yaml:"id"`
	ClientID   int64           `yaml:"client_id"`
	Name       string          `yaml:"name"`
	Status     string          `yaml:"status"`
	HourlyRate decimal.Decimal `yaml:"hourly_rate"`
}

// Budget seeds a project budget. Omitted category budgets stay NULL and zero
// thresholds fall back to the defaults.
type Budget struct {
	ProjectID int64               `yaml:"project_id"`
	Total     decimal.Decimal     `yaml:"total"`
	Labor     decimal.NullDecimal `yaml:"labor"`
	Materials decimal.NullDecimal `yaml:"materials"`
	Other     decimal.NullDecimal `yaml:"other"`
	Warning   decimal.Decimal     `yaml:"warning"`
	Critical  decimal.Decimal     `yaml:"critical"`
}

// Summary counts the rows written by Apply.
type Summary struct {
	Users    int `json:"users"`
	Clients  int `json:"clients"`
	Projects int `json:"projects"`
	Budgets  int `json:"budgets"`
}

// Execer runs a statement; satisfied by pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Load decodes and validates a fixture document.
func Load(r io.Reader) (Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return Fixture{}, errors.New("seed: empty fixture")
		}
		return Fixture{}, fmt.Errorf("seed: decode: %w", err)
	}
	if err := f.Validate(); err != nil {
		return Fixture{}, err
	}
	return f, nil
}

// Validate checks references and ranges before anything is written.
func (f Fixture) Validate() error {
	emails := make(map[string]struct{}, len(f.Users))
	for i, u := range f.Users {
		field := fmt.Sprintf("users[%d]", i)
		if strings.TrimSpace(u.ID) == "" || strings.TrimSpace(u.Email) == "" || u.Password == "" {
			return shared.NewValidationError(field, "id, email and password are required")
		}
		if _, err := shared.ParseRole(u.Role); err != nil {
			return shared.NewValidationError(field+".role", err.Error())
		}
		key := strings.ToLower(u.Email)
		if _, dup := emails[key]; dup {
			return shared.NewValidationError(field+".email", "duplicate email")
		}
		emails[key] = struct{}{}
	}

	clients := make(map[int64]struct{}, len(f.Clients))
	for i, c := range f.Clients {
		if c.ID <= 0 || strings.TrimSpace(c.Name) == "" {
			return shared.NewValidationError(fmt.Sprintf("clients[%d]", i), "positive id and name are required")
		}
		clients[c.ID] = struct{}{}
	}

	projects := make(map[int64]struct{}, len(f.Projects))
	for i, p := range f.Projects {
		field := fmt.Sprintf("projects[%d]", i)
		if p.ID <= 0 || strings.TrimSpace(p.Name) == "" {
			return shared.NewValidationError(field, "positive id and name are required")
		}
		if _, ok := clients[p.ClientID]; !ok {
			return shared.NewValidationError(field+".client_id", "unknown client")
		}
		if p.HourlyRate.IsNegative() {
			return shared.NewValidationError(field+".hourly_rate", "must not be negative")
		}
		projects[p.ID] = struct{}{}
	}

	for i, b := range f.Budgets {
		field := fmt.Sprintf("budgets[%d]", i)
		if _, ok := projects[b.ProjectID]; !ok {
			return shared.NewValidationError(field+".project_id", "unknown project")
		}
		if b.Total.IsNegative() {
			return shared.NewValidationError(field+".total", "must not be negative")
		}
		for name, v := range map[string]decimal.NullDecimal{"labor": b.Labor, "materials": b.Materials, "other": b.Other} {
			if v.Valid && v.Decimal.IsNegative() {
				return shared.NewValidationError(field+"."+name, "must not be negative")
			}
		}
		if err := b.thresholds().Validate(); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
	}
	return nil
}

func (b Budget) thresholds() budget.Thresholds {
	if b.Warning.IsZero() && b.Critical.IsZero() {
		return budget.DefaultThresholds()
	}
	return budget.Thresholds{Warning: b.Warning, Critical: b.Critical}
}

// Apply writes the fixture in one transaction. Rows are upserted so seeding is
// repeatable.
func Apply(ctx context.Context, pool db.Beginner, f Fixture) (Summary, error) {
	var summary Summary
	err := db.WithTx(ctx, pool, func(tx pgx.Tx) error {
		var err error
		summary, err = apply(ctx, tx, f, bcrypt.DefaultCost)
		return err
	})
	return summary, err
}

func apply(ctx context.Context, ex Execer, f Fixture, cost int) (Summary, error) {
	var s Summary
	for _, u := range f.Users {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), cost)
		if err != nil {
			return s, fmt.Errorf("seed: hash password for %s: %w", u.Email, err)
		}
		role, _ := shared.ParseRole(u.Role)
		if _, err := ex.Exec(ctx, `
			INSERT INTO users (id, email, password_hash, role, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, TRUE, NOW(), NOW())
			ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, password_hash = EXCLUDED.password_hash,
				role = EXCLUDED.role, is_active = TRUE, updated_at = NOW()
		`, u.ID, strings.ToLower(u.Email), string(hash), string(role)); err != nil {
			return s, fmt.Errorf("seed: user %s: %w", u.ID, err)
		}
		s.Users++
	}

	for _, c := range f.Clients {
		if _, err := ex.Exec(ctx, `
			INSERT INTO clients (id, name, email) VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email
		`, c.ID, c.Name, c.Email); err != nil {
			return s, fmt.Errorf("seed: client %d: %w", c.ID, err)
		}
		s.Clients++
	}

	for _, p := range f.Projects {
		status := p.Status
		if status == "" {
			status = "Active"
		}
		if _, err := ex.Exec(ctx, `
			INSERT INTO projects (id, client_id, name, status, hourly_rate, is_deleted, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, FALSE, NOW(), NOW())
			ON CONFLICT (id) DO UPDATE SET client_id = EXCLUDED.client_id, name = EXCLUDED.name,
				status = EXCLUDED.status, hourly_rate = EXCLUDED.hourly_rate, updated_at = NOW()
		`, p.ID, p.ClientID, p.Name, status, p.HourlyRate); err != nil {
			return s, fmt.Errorf("seed: project %d: %w", p.ID, err)
		}
		s.Projects++
	}

	for _, b := range f.Budgets {
		t := b.thresholds()
		if _, err := ex.Exec(ctx, `
			INSERT INTO project_budgets (
				project_id, total_budget, labor_budget, material_budget, other_budget,
				spent_amount, warning_threshold, critical_threshold, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, 0, $6, $7, NOW(), NOW())
			ON CONFLICT (project_id) WHERE NOT is_deleted DO UPDATE SET
				total_budget = EXCLUDED.total_budget, labor_budget = EXCLUDED.labor_budget,
				material_budget = EXCLUDED.material_budget, other_budget = EXCLUDED.other_budget,
				warning_threshold = EXCLUDED.warning_threshold, critical_threshold = EXCLUDED.critical_threshold,
				updated_at = NOW()
		`, b.ProjectID, b.Total, b.Labor, b.Materials, b.Other, t.Warning, t.Critical); err != nil {
			return s, fmt.Errorf("seed: budget for project %d: %w", b.ProjectID, err)
		}
		s.Budgets++
	}

	// Explicit ids bypass the serial sequences.
	for _, table := range []string{"clients", "projects"} {
		if _, err := ex.Exec(ctx, fmt.Sprintf(
			`SELECT setval(pg_get_serial_sequence('%[1]s', 'id'), GREATEST((SELECT MAX(id) FROM %[1]s), 1))`, table)); err != nil {
			return s, fmt.Errorf("seed: sync %s sequence: %w", table, err)
		}
	}
	return s, nil
}
