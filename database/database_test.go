package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mbolis/signup/config"
	"github.com/mbolis/signup/model"
)

func openTestDB(t *testing.T, migrate bool) *DB {
	t.Helper()
	db, err := Open(config.DatabaseConfig{
		Driver:      "sqlite3",
		Path:        filepath.Join(t.TempDir(), "signup.sqlite"),
		AutoMigrate: migrate,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newSubmission(email string, n int) *model.Submission {
	return &model.Submission{
		Name:             "Ana",
		Email:            email,
		City:             "Albuquerque",
		SubmittedAt:      time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		UnsubscribeToken: fmt.Sprintf("%064x", n),
	}
}

func TestOpenIncompleteConfig(t *testing.T) {
	for _, cfg := range []config.DatabaseConfig{
		{Driver: "sqlite3"},
		{Driver: "mysql", Host: "db.example.org", User: "signup"},
		{Driver: "postgres", Host: "db.example.org"},
	} {
		if _, err := Open(cfg); !errors.Is(err, ErrNotConfigured) {
			t.Fatalf("%+v: expected ErrNotConfigured, got %v", cfg, err)
		}
	}
}

func TestDSN(t *testing.T) {
	dsn, err := DSN(config.DatabaseConfig{
		Driver:   "mysql",
		Host:     "db.example.org",
		User:     "signup",
		Password: "s3cret",
		Name:     "members",
	})
	if err != nil {
		t.Fatalf("dsn: %v", err)
	}
	for _, want := range []string{"signup:s3cret@tcp(db.example.org:3306)/members", "parseTime=true", "charset=utf8mb4"} {
		if !strings.Contains(dsn, want) {
			t.Fatalf("expected %q in %q", want, dsn)
		}
	}

	if _, err := DSN(config.DatabaseConfig{Driver: "oracle"}); err == nil {
		t.Fatal("expected unsupported driver error")
	}
}

func TestTableExists(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, false)

	ok, err := db.TableExists(ctx)
	if err != nil {
		t.Fatalf("table exists: %v", err)
	}
	if ok {
		t.Fatal("expected no table before migrating")
	}

	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("second migrate should be a no-op: %v", err)
	}
	ok, err = db.TableExists(ctx)
	if err != nil {
		t.Fatalf("table exists: %v", err)
	}
	if !ok {
		t.Fatal("expected table after migrating")
	}
}

func TestInsertAndCount(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, true)

	for i := 1; i <= 3; i++ {
		s := newSubmission(fmt.Sprintf("member%d@example.org", i), i)
		if err := db.InsertSubmission(ctx, s); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
		if s.ID == 0 {
			t.Fatalf("insert %d: expected an id", i)
		}
	}

	n, err := db.CountSubmissions(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 rows, got %d", n)
	}
}

func TestInsertDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, true)

	if err := db.InsertSubmission(ctx, newSubmission("ana@example.org", 1)); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := db.InsertSubmission(ctx, newSubmission("ana@example.org", 2))
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}

	// a token collision is not reported as a duplicate email
	err = db.InsertSubmission(ctx, newSubmission("luis@example.org", 1))
	if err == nil || errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected a plain constraint error, got %v", err)
	}

	n, _ := db.CountSubmissions(ctx)
	if n != 1 {
		t.Fatalf("expected 1 row, got %d", n)
	}
}

func TestInsertStoresNullIP(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, true)

	s := newSubmission("ana@example.org", 1)
	if err := db.InsertSubmission(ctx, s); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := db.findByToken(ctx, s.UnsubscribeToken)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.IPAddress != nil {
		t.Fatalf("expected NULL ip, got %q", *got.IPAddress)
	}
	if got.Unsubscribed || got.UnsubscribedAt != nil {
		t.Fatal("expected a subscribed member")
	}
	if !got.SubmittedAt.Equal(s.SubmittedAt) {
		t.Fatalf("expected submitted_at %v, got %v", s.SubmittedAt, got.SubmittedAt)
	}
}

func TestUnsubscribeTwice(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, true)

	s := newSubmission("ana@example.org", 1)
	if err := db.InsertSubmission(ctx, s); err != nil {
		t.Fatalf("insert: %v", err)
	}

	first := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	result, email, err := db.Unsubscribe(ctx, s.UnsubscribeToken, first)
	if err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if result != model.Unsubscribed || email != "ana@example.org" {
		t.Fatalf("unexpected first result %v %q", result, email)
	}

	result, _, err = db.Unsubscribe(ctx, s.UnsubscribeToken, first.Add(time.Hour))
	if err != nil {
		t.Fatalf("second unsubscribe: %v", err)
	}
	if result != model.AlreadyUnsubscribed {
		t.Fatalf("expected AlreadyUnsubscribed, got %v", result)
	}

	got, err := db.findByToken(ctx, s.UnsubscribeToken)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !got.Unsubscribed || got.UnsubscribedAt == nil || !got.UnsubscribedAt.Equal(first) {
		t.Fatalf("expected unsubscribed at %v, got %+v", first, got.UnsubscribedAt)
	}
}

func TestUnsubscribeUnknownToken(t *testing.T) {
	db := openTestDB(t, true)

	_, _, err := db.Unsubscribe(context.Background(), strings.Repeat("0", 64), time.Now())
	if !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
	if _, err := db.findByToken(context.Background(), strings.Repeat("0", 64)); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
}

// findByToken loads the submission owning an unsubscribe token.
func (db *DB) findByToken(ctx context.Context, token string) (*model.Submission, error) {
	s := model.Submission{}
	var ip sql.NullString
	var unsubscribedAt sql.NullTime
	err := db.QueryRowContext(ctx, `
		SELECT
			id, name, email, country, state, city, zip_code,
			submitted_at, ip_address, unsubscribe_token, unsubscribed, unsubscribed_at
		FROM form_submissions
		WHERE unsubscribe_token = ?`,
		token,
	).Scan(
		&s.ID, &s.Name, &s.Email, &s.Country, &s.State, &s.City, &s.ZipCode,
		&s.SubmittedAt, &ip, &s.UnsubscribeToken, &s.Unsubscribed, &unsubscribedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}

	if ip.Valid {
		s.IPAddress = &ip.String
	}
	if unsubscribedAt.Valid {
		s.UnsubscribedAt = &unsubscribedAt.Time
	}
	return &s, nil
}
