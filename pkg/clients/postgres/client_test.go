package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"

	sserr "github.com/StricklySoft/identity-gateway/pkg/errors"
)

// ===========================================================================
// Query / QueryRow / Exec
// ===========================================================================

func TestClient_Query_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery("SELECT tenant_id FROM user_tenants").
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows([]string{"tenant_id"}).AddRow("a").AddRow("b"))

	client := NewFromPool(mock, "identity")
	rows, err := client.Query(context.Background(), "SELECT tenant_id FROM user_tenants WHERE user_id = $1", "u1")
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	defer rows.Close()

	var got []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			t.Fatalf("Scan() error: %v", err)
		}
		got = append(got, id)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("rows = %v, want [a b]", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestClient_Query_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery("SELECT").WillReturnError(errors.New("relation does not exist"))

	client := NewFromPool(mock, "identity")
	_, err = client.Query(context.Background(), "SELECT 1")
	if !sserr.HasCode(err, sserr.CodeInternalStore) {
		t.Errorf("Query() error code = %q, want %q", sserr.GetCode(err), sserr.CodeInternalStore)
	}
}

func TestClient_Query_Timeout(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery("SELECT").WillReturnError(context.DeadlineExceeded)

	client := NewFromPool(mock, "identity")
	_, err = client.Query(context.Background(), "SELECT 1")
	if !sserr.HasCode(err, sserr.CodeTimeoutStore) {
		t.Errorf("Query() error code = %q, want %q", sserr.GetCode(err), sserr.CodeTimeoutStore)
	}
	if !sserr.IsRetryable(err) {
		t.Error("IsRetryable() = false, want true for timeout")
	}
}

func TestClient_QueryRow_NoRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery("SELECT value FROM user_settings").
		WithArgs("u1", "LastUsedTenant").
		WillReturnRows(pgxmock.NewRows([]string{"value"}))

	client := NewFromPool(mock, "identity")
	var value string
	err = client.QueryRow(context.Background(),
		"SELECT value FROM user_settings WHERE user_id = $1 AND key = $2", "u1", "LastUsedTenant").Scan(&value)
	if !errors.Is(err, pgx.ErrNoRows) {
		t.Errorf("Scan() error = %v, want pgx.ErrNoRows", err)
	}
}

func TestClient_Exec(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec("DELETE FROM user_tenants").
		WithArgs("u1", "a").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM user_tenants").
		WillReturnError(&pgconn.PgError{Code: "40001", Message: "serialization failure"})

	client := NewFromPool(mock, "identity")
	tag, err := client.Exec(context.Background(), "DELETE FROM user_tenants WHERE user_id = $1 AND tenant_id = $2", "u1", "a")
	if err != nil {
		t.Fatalf("Exec() error: %v", err)
	}
	if tag.RowsAffected() != 1 {
		t.Errorf("RowsAffected() = %d, want 1", tag.RowsAffected())
	}

	_, err = client.Exec(context.Background(), "DELETE FROM user_tenants WHERE user_id = $1 AND tenant_id = $2", "u1", "a")
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		t.Errorf("Exec() error does not unwrap to *pgconn.PgError: %v", err)
	}
	if !sserr.HasCode(err, sserr.CodeInternalStore) {
		t.Errorf("Exec() error code = %q, want %q", sserr.GetCode(err), sserr.CodeInternalStore)
	}
}

// ===========================================================================
// Health
// ===========================================================================

func TestClient_Health(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectPing()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	client := NewFromPool(mock, "identity")
	if err := client.Health(context.Background()); err != nil {
		t.Fatalf("Health() error: %v", err)
	}
	err = client.Health(context.Background())
	if !sserr.HasCode(err, sserr.CodeUnavailableDependency) {
		t.Errorf("Health() error code = %q, want %q", sserr.GetCode(err), sserr.CodeUnavailableDependency)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestNewClient_InvalidConfig(t *testing.T) {
	_, err := NewClient(context.Background(), Config{URI: "mysql://db"})
	if !sserr.HasCode(err, sserr.CodeValidation) {
		t.Errorf("NewClient() error code = %q, want %q", sserr.GetCode(err), sserr.CodeValidation)
	}
}
