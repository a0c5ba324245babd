package tenant

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of [postgres.Client] the store uses.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// schema is applied by [PostgresStore.Migrate].
var schema = []string{
	`CREATE TABLE IF NOT EXISTS user_tenants (
	user_id      TEXT        NOT NULL,
	tenant_id    TEXT        NOT NULL,
	roles        TEXT[]      NOT NULL DEFAULT '{}',
	display_name TEXT        NOT NULL DEFAULT '',
	type         TEXT        NOT NULL DEFAULT '',
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, tenant_id)
)`,
	`CREATE TABLE IF NOT EXISTS user_settings (
	user_id    TEXT        NOT NULL,
	key        TEXT        NOT NULL,
	value      TEXT        NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, key)
)`,
}

const (
	sqlGetAssignment = `SELECT tenant_id, roles, display_name, type FROM user_tenants WHERE user_id = $1 AND tenant_id = $2`

	// Byte order, matching sortByTenant in the other stores. The database
	// default collation may sort case and punctuation differently.
	sqlListAssignments = `SELECT tenant_id, roles, display_name, type FROM user_tenants WHERE user_id = $1 ORDER BY tenant_id COLLATE "C"`

	sqlUpsertAssignment = `INSERT INTO user_tenants (user_id, tenant_id, roles, display_name, type)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id, tenant_id) DO UPDATE
SET roles = EXCLUDED.roles, display_name = EXCLUDED.display_name, type = EXCLUDED.type, updated_at = now()`

	sqlDeleteAssignment = `DELETE FROM user_tenants WHERE user_id = $1 AND tenant_id = $2`

	sqlGetSetting = `SELECT value FROM user_settings WHERE user_id = $1 AND key = $2`

	sqlUpsertSetting = `INSERT INTO user_settings (user_id, key, value)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, key) DO UPDATE
SET value = EXCLUDED.value, updated_at = now()`

	sqlDeleteSetting = `DELETE FROM user_settings WHERE user_id = $1 AND key = $2`
)

// PostgresStore is a [Store] on the user_tenants and user_settings tables.
type PostgresStore struct {
	db Querier
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore returns a store using db, typically a
// [postgres.Client].
func NewPostgresStore(db Querier) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return storeError(err, "tenant: migrate")
		}
	}
	return nil
}

func (s *PostgresStore) GetAssignment(ctx context.Context, userID, tenantID string) (*Assignment, error) {
	a := Assignment{UserID: userID}
	err := s.db.QueryRow(ctx, sqlGetAssignment, userID, tenantID).
		Scan(&a.TenantID, &a.Roles, &a.DisplayName, &a.Type)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, assignmentNotFound(userID, tenantID)
	}
	if err != nil {
		return nil, storeError(err, "tenant: get assignment")
	}
	return &a, nil
}

func (s *PostgresStore) ListAssignments(ctx context.Context, userID string) ([]Assignment, error) {
	rows, err := s.db.Query(ctx, sqlListAssignments, userID)
	if err != nil {
		return nil, storeError(err, "tenant: list assignments")
	}
	defer rows.Close()

	var list []Assignment
	for rows.Next() {
		a := Assignment{UserID: userID}
		if err := rows.Scan(&a.TenantID, &a.Roles, &a.DisplayName, &a.Type); err != nil {
			return nil, storeError(err, "tenant: scan assignment")
		}
		list = append(list, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError(err, "tenant: list assignments")
	}
	return list, nil
}

func (s *PostgresStore) UpsertAssignment(ctx context.Context, a Assignment) error {
	if err := a.validate(); err != nil {
		return err
	}
	roles := a.Roles
	if roles == nil {
		roles = []string{}
	}
	_, err := s.db.Exec(ctx, sqlUpsertAssignment, a.UserID, a.TenantID, roles, a.DisplayName, a.Type)
	if err != nil {
		return storeError(err, "tenant: upsert assignment")
	}
	return nil
}

func (s *PostgresStore) DeleteAssignment(ctx context.Context, userID, tenantID string) error {
	if _, err := s.db.Exec(ctx, sqlDeleteAssignment, userID, tenantID); err != nil {
		return storeError(err, "tenant: delete assignment")
	}
	return nil
}

func (s *PostgresStore) GetSetting(ctx context.Context, userID, key string) (*Setting, error) {
	st := Setting{UserID: userID, Key: key}
	err := s.db.QueryRow(ctx, sqlGetSetting, userID, key).Scan(&st.Value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, settingNotFound(userID, key)
	}
	if err != nil {
		return nil, storeError(err, "tenant: get setting")
	}
	return &st, nil
}

func (s *PostgresStore) UpsertSetting(ctx context.Context, st Setting) error {
	if err := st.validate(); err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, sqlUpsertSetting, st.UserID, st.Key, st.Value); err != nil {
		return storeError(err, "tenant: upsert setting")
	}
	return nil
}

func (s *PostgresStore) DeleteSetting(ctx context.Context, userID, key string) error {
	if _, err := s.db.Exec(ctx, sqlDeleteSetting, userID, key); err != nil {
		return storeError(err, "tenant: delete setting")
	}
	return nil
}
