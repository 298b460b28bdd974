package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"github.com/mbolis/signup/model"
)

var (
	ErrDuplicateEmail = errors.New("database: email already registered")
	ErrTokenNotFound  = errors.New("database: unsubscribe token not found")
)

// mysql error number for a duplicate key on a unique index
const mysqlDuplicateEntry = 1062

// InsertSubmission stores a new row and sets its ID. Uniqueness of the email is left to the
// unique index: a violation is reported as ErrDuplicateEmail.
func (db *DB) InsertSubmission(ctx context.Context, s *model.Submission) error {
	res, err := db.ExecContext(ctx, `
		INSERT INTO form_submissions (
			name, email, country, state, city, zip_code,
			submitted_at, ip_address, unsubscribe_token, unsubscribed
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Name, s.Email, s.Country, s.State, s.City, s.ZipCode,
		s.SubmittedAt.UTC(), s.IPAddress, s.UnsubscribeToken, false,
	)
	if err != nil {
		if isUniqueViolation(err, "email") {
			return ErrDuplicateEmail
		}
		return err
	}

	s.ID, err = res.LastInsertId()
	return err
}

// isUniqueViolation reports whether err is a unique-constraint failure on the given column.
func isUniqueViolation(err error, column string) bool {
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique &&
			strings.Contains(liteErr.Error(), "."+column)
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry &&
			strings.Contains(myErr.Message, "idx_"+column)
	}
	return false
}

// Unsubscribe flips the row owning token to unsubscribed. The update is conditional, so
// concurrent requests with the same token see exactly one transition and the others
// report AlreadyUnsubscribed.
func (db *DB) Unsubscribe(ctx context.Context, token string, now time.Time) (result model.UnsubscribeResult, email string, err error) {
	res, err := db.ExecContext(ctx, `
		UPDATE form_submissions
		SET
			unsubscribed = ?,
			unsubscribed_at = ?
		WHERE unsubscribe_token = ?
			AND unsubscribed = ?`,
		true,
		now.UTC(),
		token,
		false,
	)
	if err != nil {
		return
	}
	n, err := res.RowsAffected()
	if err != nil {
		return
	}

	err = db.QueryRowContext(ctx, `
		SELECT email FROM form_submissions
		WHERE unsubscribe_token = ?`,
		token,
	).Scan(&email)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrTokenNotFound
		return
	}
	if err != nil {
		return
	}

	if n > 0 {
		result = model.Unsubscribed
	} else {
		result = model.AlreadyUnsubscribed
	}
	return
}

// CountSubmissions returns the total number of rows, unsubscribed members included.
func (db *DB) CountSubmissions(ctx context.Context) (n int, err error) {
	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM form_submissions`).Scan(&n)
	return
}
