package reset

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i := range dest {
		switch target := dest[i].(type) {
		case *int64:
			*target = r.values[i].(int64)
		default:
			return fmt.Errorf("unsupported destination %T", dest[i])
		}
	}
	return nil
}

type fakeRows struct {
	values []int64
	index  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Next() bool {
	if r.index >= len(r.values) {
		return false
	}
	r.index++
	return true
}
func (r *fakeRows) Scan(dest ...any) error {
	target, ok := dest[0].(*int64)
	if !ok {
		return fmt.Errorf("unsupported destination %T", dest[0])
	}
	*target = r.values[r.index-1]
	return nil
}
func (r *fakeRows) Values() ([]any, error) { return nil, nil }
func (r *fakeRows) RawValues() [][]byte    { return nil }
func (r *fakeRows) Conn() *pgx.Conn        { return nil }

// fakeTx simulates the user/org schema for the reset flow.
type fakeTx struct {
	userID       int64
	userMissing  bool
	orgIDs       []int64
	orgMembers   map[int64]int64
	rowsPerTable map[string]int64
	failTable    string

	executed   []string
	committed  bool
	rolledBack bool
}

func (f *fakeTx) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	switch {
	case strings.Contains(sql, "FROM users WHERE email"):
		if f.userMissing {
			return fakeRow{err: pgx.ErrNoRows}
		}
		return fakeRow{values: []any{f.userID}}
	case strings.Contains(sql, "COUNT(*) FROM user_roles WHERE org_id"):
		orgID := args[0].(int64)
		return fakeRow{values: []any{f.orgMembers[orgID]}}
	}
	return fakeRow{err: fmt.Errorf("unexpected query %q", sql)}
}

func (f *fakeTx) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	if strings.Contains(sql, "INNER JOIN user_roles") {
		return &fakeRows{values: f.orgIDs}, nil
	}
	return nil, fmt.Errorf("unexpected query %q", sql)
}

func (f *fakeTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.executed = append(f.executed, sql)
	for table, rows := range f.rowsPerTable {
		if !strings.Contains(sql, table) {
			continue
		}
		if f.failTable == table {
			return pgconn.CommandTag{}, fmt.Errorf("relation %q is locked", table)
		}
		return pgconn.NewCommandTag(fmt.Sprintf("DELETE %d", rows)), nil
	}
	return pgconn.NewCommandTag("DELETE 0"), nil
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolledBack = true
	return nil
}

func TestRunDeletesEverything(t *testing.T) {
	t.Parallel()

	tx := &fakeTx{
		userID:     42,
		orgIDs:     []int64{7, 8},
		orgMembers: map[int64]int64{7: 0, 8: 2},
		rowsPerTable: map[string]int64{
			"reviews":     12,
			"auth_tokens": 3,
			"users":       1,
		},
	}

	result, err := run(context.Background(), tx, zap.NewNop(), "tester@example.com")
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}

	if result.UserID != 42 {
		t.Errorf("UserID = %d, want 42", result.UserID)
	}
	if len(result.OrgIDs) != 2 {
		t.Errorf("OrgIDs = %v, want two orgs", result.OrgIDs)
	}

	// 1 cli clear + 8 org tables + roles + tokens + user = 12 steps.
	if len(result.Steps) != 12 {
		t.Errorf("steps = %d, want 12: %+v", len(result.Steps), result.Steps)
	}

	stepRows := map[string]int64{}
	for _, step := range result.Steps {
		stepRows[step.Name] = step.Rows
	}
	if stepRows["delete_reviews"] != 12 {
		t.Errorf("delete_reviews rows = %d, want 12", stepRows["delete_reviews"])
	}
	if stepRows["delete_auth_tokens"] != 3 {
		t.Errorf("delete_auth_tokens rows = %d, want 3", stepRows["delete_auth_tokens"])
	}

	// Org 7 lost its last member; org 8 still has two.
	if len(result.DeletedOrgs) != 1 || result.DeletedOrgs[0] != 7 {
		t.Errorf("DeletedOrgs = %v, want [7]", result.DeletedOrgs)
	}

	var userDeleted bool
	for _, sql := range tx.executed {
		if strings.Contains(sql, "DELETE FROM users") {
			userDeleted = true
		}
	}
	if !userDeleted {
		t.Error("user row was never deleted")
	}
}

func TestRunUserNotFound(t *testing.T) {
	t.Parallel()

	tx := &fakeTx{userMissing: true}
	_, err := run(context.Background(), tx, zap.NewNop(), "ghost@example.com")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("run() error = %v, want ErrUserNotFound", err)
	}
}

func TestRunStopsOnFirstFailure(t *testing.T) {
	t.Parallel()

	tx := &fakeTx{
		userID:       42,
		orgIDs:       []int64{7},
		orgMembers:   map[int64]int64{7: 0},
		rowsPerTable: map[string]int64{"api_keys": 1},
		failTable:    "api_keys",
	}

	_, err := run(context.Background(), tx, zap.NewNop(), "tester@example.com")
	if err == nil {
		t.Fatal("run() expected error")
	}
	if !strings.Contains(err.Error(), "api_keys") {
		t.Errorf("error = %v, want failing table named", err)
	}

	for _, sql := range tx.executed {
		if strings.Contains(sql, "DELETE FROM users WHERE id") {
			t.Error("user delete ran after an earlier step failed")
		}
	}
}

func TestRunNoOrgsSkipsOrgScopedDeletes(t *testing.T) {
	t.Parallel()

	tx := &fakeTx{userID: 42, rowsPerTable: map[string]int64{"users": 1}}
	result, err := run(context.Background(), tx, zap.NewNop(), "tester@example.com")
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}

	// cli clear + roles + tokens + user only.
	if len(result.Steps) != 4 {
		t.Errorf("steps = %d, want 4: %+v", len(result.Steps), result.Steps)
	}
	for _, sql := range tx.executed {
		if strings.Contains(sql, "org_id = ANY") {
			t.Errorf("org-scoped delete ran with no orgs: %q", sql)
		}
	}
}
