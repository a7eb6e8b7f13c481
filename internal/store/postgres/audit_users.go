package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"

	"tindahan/backend/internal/domain"
	"tindahan/backend/internal/store"
)

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	sqlText, args, err := psql.Insert("audit_logs").
		Columns("actor_username", "actor_role", "action", "entity_type", "entity_id", "detail", "created_at").
		Values(entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt).
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, sqlText, args...)
	return err
}

// ListAuditLogs returns entries created in [from, to), newest first.
func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	query := psql.Select("id", "actor_username", "actor_role", "action", "entity_type", "entity_id", "detail", "created_at").
		From("audit_logs").
		Where(squirrel.GtOrEq{"created_at": from}).
		Where(squirrel.Lt{"created_at": to}).
		OrderBy("created_at DESC", "id DESC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}
	sqlText, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	logs := make([]domain.AuditLog, 0, max(limit, 0))
	if err := sqlscan.Select(ctx, s.db, &logs, sqlText, args...); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}

	sqlText, args, err := psql.Insert("app_users").
		Columns("username", "password", "role", "active").
		Values(user.Username, user.Password, user.Role, user.Active).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, sqlText, args...); err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	users := make([]domain.UserAccount, 0, 8)
	err := sqlscan.Select(ctx, s.db, &users,
		`SELECT username, password, role, active, created_at FROM app_users ORDER BY username`)
	return users, err
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE app_users SET password = $1, updated_at = NOW() WHERE username = $2`,
		password, username,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
