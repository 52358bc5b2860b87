package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"waterlily/internal/profile/models"
	"waterlily/pkg/platform/sentinel"
	txcontext "waterlily/pkg/platform/tx"
)

// SQLStore persists profiles in a relational database. Every method joins the
// transaction attached to ctx by RunInTx, or runs on the pool otherwise.
type SQLStore struct {
	db      *sql.DB
	dialect *Dialect
	runner  *txcontext.SQLRunner
}

// Open connects to the database named by driver and dsn and verifies the
// connection.
func Open(ctx context.Context, driver, dsn string, maxOpenConns int, txTimeout time.Duration, logger *slog.Logger) (*SQLStore, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	if dialect.Name == "mysql" {
		if dsn, err = MySQLDSN(dsn); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open(dialect.DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect.Name, err)
	}
	if maxOpenConns <= 0 {
		maxOpenConns = 10
	}
	dialect.configure(db, maxOpenConns)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s database: %w", dialect.Name, err)
	}
	return New(db, dialect, txTimeout, logger), nil
}

// New wraps an open handle. The caller keeps ownership of db until Close.
func New(db *sql.DB, dialect *Dialect, txTimeout time.Duration, logger *slog.Logger) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: dialect,
		runner:  txcontext.NewSQLRunner(db, txTimeout, logger),
	}
}

func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) Dialect() *Dialect {
	return s.dialect
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RunInTx runs fn inside one database transaction.
func (s *SQLStore) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return s.runner.RunInTx(ctx, fn)
}

func (s *SQLStore) q(ctx context.Context) txcontext.Querier {
	return txcontext.QuerierFrom(ctx, s.db)
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.q(ctx).ExecContext(ctx, s.dialect.rebind(query), args...)
}

func (s *SQLStore) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.q(ctx).QueryRowContext(ctx, s.dialect.rebind(query), args...)
}

// CreateAccount inserts an account row. Signup owns accounts in production;
// this exists for local seeding and tests.
func (s *SQLStore) CreateAccount(ctx context.Context, email string, firstName, lastName *string) (int64, error) {
	const query = `INSERT INTO users (email, first_name, last_name) VALUES (?, ?, ?)`
	id, err := s.insertReturningID(ctx, query, email, firstName, lastName)
	if err != nil {
		if s.dialect.IsUniqueViolation(err) {
			return 0, sentinel.ErrAlreadyUsed
		}
		return 0, s.dialect.wrap("create account", err)
	}
	return id, nil
}

// LockAccount takes a row lock on the account for the rest of the
// transaction. Returns sentinel.ErrNotFound when the account does not exist.
func (s *SQLStore) LockAccount(ctx context.Context, userID int64) error {
	var id int64
	err := s.queryRow(ctx, `SELECT id FROM users WHERE id = ?`+s.dialect.lockClause, userID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrNotFound
		}
		return s.dialect.wrap("lock account", err)
	}
	return nil
}

// MergeAccountNames updates only the names that are non-nil.
func (s *SQLStore) MergeAccountNames(ctx context.Context, userID int64, names models.AccountNames) error {
	const query = `UPDATE users SET
		first_name = COALESCE(?, first_name),
		last_name = COALESCE(?, last_name)
		WHERE id = ?`
	if _, err := s.exec(ctx, query, names.FirstName, names.LastName, userID); err != nil {
		return s.dialect.wrap("merge account names", err)
	}
	return nil
}

var demographicColumns = []string{
	"race_ethnicity", "marital_status", "employment_status", "education_level", "gender",
	"dob", "zip_code", "household_size", "primary_language", "veteran_status",
}

// UpsertDemographic writes the full demographic row, overwriting every column.
func (s *SQLStore) UpsertDemographic(ctx context.Context, d *models.Demographic) error {
	query := s.dialect.conflictUpsert("demographic_data", "user_id", demographicColumns)
	_, err := s.exec(ctx, query,
		d.UserID, d.RaceEthnicity, d.MaritalStatus, d.EmploymentStatus, d.EducationLevel, d.Gender,
		d.Dob, d.ZipCode, d.HouseholdSize, d.PrimaryLanguage, d.VeteranStatus,
	)
	if err != nil {
		return s.dialect.wrap("upsert demographic", err)
	}
	return nil
}

var financialColumns = []string{
	"annual_income", "has_health_insurance", "insurance_type", "has_longterm_care_insurance", "has_estate_plan",
}

// UpsertFinancial writes the full financial row, overwriting every column.
func (s *SQLStore) UpsertFinancial(ctx context.Context, f *models.Financial) error {
	query := s.dialect.conflictUpsert("financial_data", "user_id", financialColumns)
	_, err := s.exec(ctx, query,
		f.UserID, f.AnnualIncome, f.HasHealthInsurance, f.InsuranceType, f.HasLongtermCareInsurance, f.HasEstatePlan,
	)
	if err != nil {
		return s.dialect.wrap("upsert financial", err)
	}
	return nil
}

// FindResponseID returns the user's response row id or sentinel.ErrNotFound.
func (s *SQLStore) FindResponseID(ctx context.Context, userID int64) (int64, error) {
	var id int64
	err := s.queryRow(ctx, `SELECT id FROM user_responses WHERE user_id = ?`, userID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, sentinel.ErrNotFound
		}
		return 0, s.dialect.wrap("find response", err)
	}
	return id, nil
}

// UpsertResponse writes the health blob and stamps submitted_at.
func (s *SQLStore) UpsertResponse(ctx context.Context, r *models.Response) error {
	query := s.dialect.conflictUpsert("user_responses", "user_id", []string{"health_data", "submitted_at"})
	if _, err := s.exec(ctx, query, r.UserID, r.HealthData, s.dialect.bindTime(r.SubmittedAt)); err != nil {
		return s.dialect.wrap("upsert response", err)
	}
	return nil
}

// InsertResponse inserts a response row and returns its id. A second row for
// the same user fails with sentinel.ErrAlreadyUsed.
func (s *SQLStore) InsertResponse(ctx context.Context, r *models.Response) (int64, error) {
	const query = `INSERT INTO user_responses (user_id, health_data, submitted_at) VALUES (?, ?, ?)`
	id, err := s.insertReturningID(ctx, query, r.UserID, r.HealthData, s.dialect.bindTime(r.SubmittedAt))
	if err != nil {
		if s.dialect.IsUniqueViolation(err) {
			return 0, sentinel.ErrAlreadyUsed
		}
		return 0, s.dialect.wrap("insert response", err)
	}
	return id, nil
}

func (s *SQLStore) insertReturningID(ctx context.Context, query string, args ...any) (int64, error) {
	if s.dialect.returning {
		var id int64
		err := s.queryRow(ctx, query+" RETURNING id", args...).Scan(&id)
		return id, err
	}
	res, err := s.exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// FindComposite reads the account and its dependents with one LEFT JOIN.
// Returns sentinel.ErrNotFound when the account does not exist.
func (s *SQLStore) FindComposite(ctx context.Context, userID int64) (*models.JoinedRow, error) {
	query := `SELECT
		u.id, u.email, u.first_name, u.last_name,
		d.id, d.race_ethnicity, d.marital_status, d.employment_status, d.education_level, d.gender,
		` + s.dialect.dobColumn + `, d.zip_code, d.household_size, d.primary_language, d.veteran_status,
		f.id, f.annual_income, f.has_health_insurance, f.insurance_type, f.has_longterm_care_insurance, f.has_estate_plan,
		r.id, r.health_data, r.submitted_at
	FROM users u
	LEFT JOIN demographic_data d ON d.user_id = u.id
	LEFT JOIN financial_data f ON f.user_id = u.id
	LEFT JOIN user_responses r ON r.user_id = u.id
	WHERE u.id = ?`

	var row models.JoinedRow
	var submittedAt nullTime
	err := s.queryRow(ctx, query, userID).Scan(
		&row.UserID, &row.Email, &row.FirstName, &row.LastName,
		&row.DemographicID, &row.RaceEthnicity, &row.MaritalStatus, &row.EmploymentStatus, &row.EducationLevel, &row.Gender,
		&row.Dob, &row.ZipCode, &row.HouseholdSize, &row.PrimaryLanguage, &row.VeteranStatus,
		&row.FinancialID, &row.AnnualIncome, &row.HasHealthInsurance, &row.InsuranceType, &row.HasLongtermCareInsurance, &row.HasEstatePlan,
		&row.ResponseID, &row.HealthData, &submittedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, s.dialect.wrap("find composite", err)
	}
	row.SubmittedAt = submittedAt.Time
	return &row, nil
}

// AppendOutbox records an event in the same transaction as the write that
// produced it.
func (s *SQLStore) AppendOutbox(ctx context.Context, e *models.OutboxEntry) error {
	const query = `INSERT INTO outbox (id, aggregate_id, event_type, payload, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err := s.exec(ctx, query, e.ID, e.AggregateID, e.EventType, string(e.Payload), s.dialect.bindTime(e.CreatedAt))
	if err != nil {
		return s.dialect.wrap("insert outbox entry", err)
	}
	return nil
}

// PendingOutbox returns up to limit unpublished events, oldest first.
func (s *SQLStore) PendingOutbox(ctx context.Context, limit int) ([]models.OutboxEntry, error) {
	query := s.dialect.rebind(`SELECT id, aggregate_id, event_type, payload, created_at
		FROM outbox WHERE published_at IS NULL
		ORDER BY created_at, id LIMIT ?`)
	rows, err := s.q(ctx).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, s.dialect.wrap("list pending outbox", err)
	}
	defer rows.Close()

	var entries []models.OutboxEntry
	for rows.Next() {
		var e models.OutboxEntry
		var payload string
		var createdAt nullTime
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &payload, &createdAt); err != nil {
			return nil, s.dialect.wrap("scan outbox entry", err)
		}
		e.Payload = []byte(payload)
		if createdAt.Time != nil {
			e.CreatedAt = *createdAt.Time
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, s.dialect.wrap("list pending outbox", err)
	}
	return entries, nil
}

// MarkOutboxPublished stamps published_at on the given events.
func (s *SQLStore) MarkOutboxPublished(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, s.dialect.bindTime(at))
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE outbox SET published_at = ? WHERE id IN (` + placeholders(len(ids)) + `)`
	if _, err := s.exec(ctx, query, args...); err != nil {
		return s.dialect.wrap("mark outbox published", err)
	}
	return nil
}

// CountRows counts the rows of one of the profile tables.
func (s *SQLStore) CountRows(ctx context.Context, table string) (int, error) {
	switch table {
	case "users", "demographic_data", "financial_data", "user_responses", "outbox":
	default:
		return 0, fmt.Errorf("unknown table %q", strings.TrimSpace(table))
	}
	var n int
	if err := s.queryRow(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, s.dialect.wrap("count "+table, err)
	}
	return n, nil
}
