// Package reset deletes a user and all org-scoped data inside one
// transaction so a test account can register again from scratch.
package reset

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// ErrUserNotFound reports that no user matches the given email.
var ErrUserNotFound = errors.New("user not found")

// Tx is the slice of pgx.Tx the reset flow needs.
type Tx interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Beginner is the slice of pgxpool.Pool the reset flow needs.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Step reports how many rows one deletion step removed.
type Step struct {
	Name string
	Rows int64
}

// Result summarizes a completed reset.
type Result struct {
	UserID      int64
	Email       string
	OrgIDs      []int64
	Steps       []Step
	DeletedOrgs []int64
}

// Org-scoped tables cleared before the membership rows go away.
var orgScopedTables = []string{
	"reviews",
	"ai_connectors",
	"integration_tokens",
	"api_keys",
	"recent_activity",
	"prompt_application_context",
	"license_log",
	"subscriptions",
}

// ResetUser removes the user with the given email and every record tied
// to the user's organizations. All statements run in one transaction;
// any failure rolls the whole reset back.
func ResetUser(ctx context.Context, db Beginner, logger *zap.Logger, email string) (Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("begin transaction: %w", err)
	}

	result, err := run(ctx, tx, logger, email)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			logger.Warn("rollback failed", zap.Error(rbErr))
		}
		return Result{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("commit reset: %w", err)
	}
	return result, nil
}

func run(ctx context.Context, tx Tx, logger *zap.Logger, email string) (Result, error) {
	result := Result{Email: email}

	err := tx.QueryRow(ctx, "SELECT id FROM users WHERE email = $1", email).Scan(&result.UserID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Result{}, fmt.Errorf("%w: %s", ErrUserNotFound, email)
	}
	if err != nil {
		return Result{}, fmt.Errorf("resolve user: %w", err)
	}
	logger.Info("resolved user", zap.String("email", email), zap.Int64("user_id", result.UserID))

	orgIDs, err := collectOrgIDs(ctx, tx, result.UserID)
	if err != nil {
		return Result{}, err
	}
	result.OrgIDs = orgIDs
	logger.Info("collected organizations", zap.Int("count", len(orgIDs)))

	if _, err := tx.Exec(ctx, "UPDATE users SET last_cli_used_at = NULL WHERE id = $1", result.UserID); err != nil {
		return Result{}, fmt.Errorf("clear cli usage: %w", err)
	}
	result.Steps = append(result.Steps, Step{Name: "clear_cli_usage", Rows: 1})

	if len(orgIDs) > 0 {
		for _, table := range orgScopedTables {
			tag, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE org_id = ANY($1)", table), orgIDs)
			if err != nil {
				return Result{}, fmt.Errorf("delete %s: %w", table, err)
			}
			result.Steps = append(result.Steps, Step{Name: "delete_" + table, Rows: tag.RowsAffected()})
			logger.Info("deleted org-scoped rows", zap.String("table", table), zap.Int64("rows", tag.RowsAffected()))
		}
	}

	for _, step := range []struct {
		name string
		sql  string
	}{
		{"delete_user_roles", "DELETE FROM user_roles WHERE user_id = $1"},
		{"delete_auth_tokens", "DELETE FROM auth_tokens WHERE user_id = $1"},
	} {
		tag, err := tx.Exec(ctx, step.sql, result.UserID)
		if err != nil {
			return Result{}, fmt.Errorf("%s: %w", step.name, err)
		}
		result.Steps = append(result.Steps, Step{Name: step.name, Rows: tag.RowsAffected()})
	}

	// Orgs left without members after the membership delete go away too.
	for _, orgID := range orgIDs {
		var remaining int64
		if err := tx.QueryRow(ctx, "SELECT COUNT(*) FROM user_roles WHERE org_id = $1", orgID).Scan(&remaining); err != nil {
			return Result{}, fmt.Errorf("count remaining members for org %d: %w", orgID, err)
		}
		if remaining > 0 {
			continue
		}
		if _, err := tx.Exec(ctx, "DELETE FROM orgs WHERE id = $1", orgID); err != nil {
			return Result{}, fmt.Errorf("delete org %d: %w", orgID, err)
		}
		result.DeletedOrgs = append(result.DeletedOrgs, orgID)
		logger.Info("deleted empty organization", zap.Int64("org_id", orgID))
	}

	tag, err := tx.Exec(ctx, "DELETE FROM users WHERE id = $1", result.UserID)
	if err != nil {
		return Result{}, fmt.Errorf("delete user: %w", err)
	}
	result.Steps = append(result.Steps, Step{Name: "delete_user", Rows: tag.RowsAffected()})

	return result, nil
}

func collectOrgIDs(ctx context.Context, tx Tx, userID int64) ([]int64, error) {
	rows, err := tx.Query(ctx, `
		SELECT o.id
		FROM orgs o
		INNER JOIN user_roles ur ON o.id = ur.org_id
		WHERE ur.user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	var orgIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan org id: %w", err)
		}
		orgIDs = append(orgIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate organizations: %w", err)
	}
	return orgIDs, nil
}
