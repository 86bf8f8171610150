/*
Package sqlite provides the SQLite-backed implementation of the commission
storage interfaces.

PURPOSE:
  Implements commission.Store using SQLite. In production, the same patterns
  apply to PostgreSQL - only minor SQL dialect differences.

APPEND-MOSTLY ENFORCEMENT:
  The entries table is append-mostly:
  - No DELETE statements on entries, ever
  - The only UPDATE touches the status column, guarded by the expected
    current status and the legal state machine
  - Corrections are new adjustment entries, never edits

KEY CONSTRAINTS:
  idx_unique_commission: at most one non-failed commission entry per
    (payment, beneficiary, level, structure) tuple. This partial unique
    index is the engine's sole concurrency guard; a conflict means
    "already handled", not an error.
  idx_unique_skip: one skip record per tuple, so re-running distribution
    does not duplicate pass-up reporting.
  entry_reversals.source_entry_id PRIMARY KEY: one reversal per source
    entry, which is how the reversal engine refuses to run twice.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/commissions.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - commission/store.go: Interface definitions
  - commission/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/Mr-Geneza/MG-Market-sub000/commission"
)

// timeFormat is RFC 3339 with fixed-width nanoseconds. Values are always
// stored UTC, so lexicographic comparison in SQL range predicates matches
// chronological order (RFC3339Nano drops trailing zeros and does not).
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// Store implements commission.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store. Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	-- Participants. sponsor_id forms a forest (at most one upline).
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		sponsor_id TEXT,
		registered_at TEXT NOT NULL,
		banned INTEGER NOT NULL DEFAULT 0,
		archived INTEGER NOT NULL DEFAULT 0,
		subscription_from TEXT,
		subscription_until TEXT,
		cached_available TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_sponsor
		ON accounts(sponsor_id, registered_at);

	-- Confirmed payment facts. exempt may be flipped on after the fact;
	-- everything else never changes.
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		payer_id TEXT NOT NULL,
		structure TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		normalized_amount TEXT NOT NULL,
		ts TEXT NOT NULL,
		exempt INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_payments_payer ON payments(payer_id, ts);
	CREATE INDEX IF NOT EXISTS idx_payments_ts ON payments(ts, id);

	-- Ledger entries. Amounts immutable; only status moves.
	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		amount TEXT NOT NULL,
		status TEXT NOT NULL,
		structure TEXT,
		level INTEGER NOT NULL DEFAULT 0,
		payment_id TEXT,
		provenance_json TEXT,
		frozen_until TEXT,
		created_at TEXT NOT NULL
	);

	-- CRITICAL: the anti-duplication constraint. At most one non-failed
	-- commission entry per (payment, beneficiary, level, structure).
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_commission
		ON entries(payment_id, owner_id, level, structure)
		WHERE kind = 'commission' AND status != 'failed';

	CREATE INDEX IF NOT EXISTS idx_entries_owner ON entries(owner_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_entries_kind_status ON entries(kind, status, created_at);
	CREATE INDEX IF NOT EXISTS idx_entries_frozen
		ON entries(frozen_until) WHERE status = 'frozen';

	-- One reversal per source entry.
	CREATE TABLE IF NOT EXISTS entry_reversals (
		source_entry_id TEXT PRIMARY KEY,
		adjustment_id TEXT NOT NULL
	);

	-- Evaluated-but-not-paid records (pass-up reporting).
	CREATE TABLE IF NOT EXISTS skips (
		id TEXT PRIMARY KEY,
		payment_id TEXT NOT NULL,
		beneficiary_id TEXT NOT NULL,
		structure TEXT NOT NULL,
		level INTEGER NOT NULL,
		reason TEXT NOT NULL,
		forgone TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_skip
		ON skips(payment_id, beneficiary_id, level, structure);
	CREATE INDEX IF NOT EXISTS idx_skips_payment ON skips(payment_id);

	-- Monthly activation facts (tiered structure).
	CREATE TABLE IF NOT EXISTS activations (
		account_id TEXT NOT NULL,
		month TEXT NOT NULL,
		active INTEGER NOT NULL,
		PRIMARY KEY (account_id, month)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ACCOUNT STORE
// =============================================================================

func (s *Store) SaveAccount(ctx context.Context, a commission.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO accounts
		(id, sponsor_id, registered_at, banned, archived, subscription_from, subscription_until, cached_available, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			sponsor_id = excluded.sponsor_id,
			banned = excluded.banned,
			archived = excluded.archived,
			subscription_from = excluded.subscription_from,
			subscription_until = excluded.subscription_until,
			cached_available = excluded.cached_available
	`
	_, err := s.db.ExecContext(ctx, query,
		a.ID,
		nullableID(a.SponsorID),
		a.RegisteredAt.UTC().Format(timeFormat),
		a.Banned,
		a.Archived,
		nullableTime(a.SubscriptionFrom),
		nullableTime(a.SubscriptionUntil),
		a.CachedAvailable.String(),
		time.Now().UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

func (s *Store) Account(ctx context.Context, id commission.AccountID) (*commission.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, accountSelect+` WHERE id = ?`, id)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Store) AccountPage(ctx context.Context, offset, limit int) ([]commission.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		accountSelect+` ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []commission.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

func (s *Store) DirectReferralCount(ctx context.Context, sponsor commission.AccountID, asOf time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM accounts WHERE sponsor_id = ? AND registered_at <= ?`,
		sponsor, asOf.UTC().Format(timeFormat),
	).Scan(&count)
	return count, err
}

func (s *Store) SetCachedAvailable(ctx context.Context, id commission.AccountID, available decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET cached_available = ? WHERE id = ?`, available.String(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return commission.ErrAccountNotFound
	}
	return nil
}

func (s *Store) ReassignDownline(ctx context.Context, from commission.AccountID, to *commission.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET sponsor_id = ? WHERE sponsor_id = ?`, nullableID(to), from)
	return err
}

func (s *Store) PurgeAccount(ctx context.Context, id commission.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	return err
}

// =============================================================================
// PAYMENT STORE
// =============================================================================

func (s *Store) SavePayment(ctx context.Context, p commission.PaymentEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO payments (id, payer_id, structure, amount, currency, normalized_amount, ts, exempt)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.Payer, string(p.Structure),
		p.Amount.String(), p.Currency, p.NormalizedAmount.String(),
		p.Timestamp.UTC().Format(timeFormat),
		p.Exempt,
	)
	if err != nil {
		return fmt.Errorf("failed to save payment: %w", err)
	}
	return nil
}

func (s *Store) Payment(ctx context.Context, id commission.PaymentID) (*commission.PaymentEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, paymentSelect+` WHERE id = ?`, id)
	p, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) PaymentPage(ctx context.Context, payer *commission.AccountID, offset, limit int) ([]commission.PaymentEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := paymentSelect
	args := []any{}
	if payer != nil {
		query += ` WHERE payer_id = ?`
		args = append(args, *payer)
	}
	query += ` ORDER BY ts, id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []commission.PaymentEvent
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

func (s *Store) MarkExempt(ctx context.Context, id commission.PaymentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE payments SET exempt = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return commission.ErrPaymentNotFound
	}
	return nil
}

// =============================================================================
// LEDGER STORE
// =============================================================================

func (s *Store) AppendEntry(ctx context.Context, e commission.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Reversal provenance first, so the one-reversal-per-source constraint
	// fires before any money is written.
	if e.Kind == commission.KindAdjustment {
		for _, src := range e.Provenance.SourceEntries {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO entry_reversals (source_entry_id, adjustment_id) VALUES (?, ?)`,
				src, e.ID); err != nil {
				if isConstraintError(err, sqlite3.ErrConstraintPrimaryKey) {
					return commission.ErrAlreadyReversed
				}
				return err
			}
		}
	}

	provenanceJSON, _ := json.Marshal(e.Provenance)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO entries
		(id, owner_id, kind, amount, status, structure, level, payment_id, provenance_json, frozen_until, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Owner, e.Kind, e.Amount.String(), e.Status,
		string(e.Structure), e.Level,
		nullString(string(e.PaymentID)),
		string(provenanceJSON),
		nullTimeString(e.FrozenUntil),
		e.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		// Only idx_unique_commission violations (SQLITE_CONSTRAINT_UNIQUE)
		// mean "already handled". An id primary-key collision is a genuine
		// failure and must not be swallowed as a conflict.
		if isConstraintError(err, sqlite3.ErrConstraintUnique) {
			return commission.ErrDuplicateCommission
		}
		return fmt.Errorf("failed to append entry: %w", err)
	}

	return tx.Commit()
}

func (s *Store) Entry(ctx context.Context, id commission.EntryID) (*commission.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := s.queryEntries(ctx, entrySelect+` WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

func (s *Store) EntriesByOwner(ctx context.Context, owner commission.AccountID) ([]commission.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryEntries(ctx,
		entrySelect+` WHERE owner_id = ? ORDER BY created_at, id`, owner)
}

func (s *Store) CommissionExists(ctx context.Context, payment commission.PaymentID, owner commission.AccountID, level int, structure commission.Structure) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM entries
		WHERE kind = 'commission' AND status != 'failed'
		  AND payment_id = ? AND owner_id = ? AND level = ? AND structure = ?`,
		payment, owner, level, string(structure),
	).Scan(&count)
	return count > 0, err
}

func (s *Store) CommissionEntryPage(ctx context.Context, since time.Time, offset, limit int) ([]commission.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := entrySelect + ` WHERE kind = 'commission' AND status != 'failed'`
	args := []any{}
	if !since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, since.UTC().Format(timeFormat))
	}
	query += ` ORDER BY created_at, id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)
	return s.queryEntries(ctx, query, args...)
}

func (s *Store) FrozenDue(ctx context.Context, asOf time.Time) ([]commission.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryEntries(ctx,
		entrySelect+` WHERE status = 'frozen' AND frozen_until <= ? ORDER BY frozen_until`,
		asOf.UTC().Format(timeFormat))
}

func (s *Store) TransitionStatus(ctx context.Context, id commission.EntryID, from, to commission.EntryStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !commission.CanTransition(from, to) {
		return &commission.InvalidTransitionError{Entry: id, From: from, To: to}
	}

	// Guarded by the expected current status: a lost race shows up as
	// zero affected rows, never as a silent overwrite.
	res, err := s.db.ExecContext(ctx,
		`UPDATE entries SET status = ? WHERE id = ? AND status = ?`, to, id, from)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var current string
		err := s.db.QueryRowContext(ctx, `SELECT status FROM entries WHERE id = ?`, id).Scan(&current)
		if err == sql.ErrNoRows {
			return commission.ErrEntryNotFound
		}
		if err != nil {
			return err
		}
		return &commission.InvalidTransitionError{Entry: id, From: commission.EntryStatus(current), To: to}
	}
	return nil
}

func (s *Store) ReversalFor(ctx context.Context, source commission.EntryID) (*commission.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var adjID string
	err := s.db.QueryRowContext(ctx,
		`SELECT adjustment_id FROM entry_reversals WHERE source_entry_id = ?`, source).Scan(&adjID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	entries, err := s.queryEntries(ctx, entrySelect+` WHERE id = ?`, adjID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

func (s *Store) AppendSkip(ctx context.Context, sk commission.SkipRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO skips (id, payment_id, beneficiary_id, structure, level, reason, forgone, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sk.ID, sk.PaymentID, sk.Beneficiary, string(sk.Structure), sk.Level,
		sk.Reason, sk.Forgone.String(), sk.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		if isConstraintError(err, sqlite3.ErrConstraintUnique) {
			return commission.ErrDuplicateSkip
		}
		return fmt.Errorf("failed to append skip: %w", err)
	}
	return nil
}

func (s *Store) SkipsByPayment(ctx context.Context, payment commission.PaymentID) ([]commission.SkipRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, payment_id, beneficiary_id, structure, level, reason, forgone, created_at
		FROM skips WHERE payment_id = ? ORDER BY level`, payment)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var skips []commission.SkipRecord
	for rows.Next() {
		var sk commission.SkipRecord
		var structure, reason, forgone, createdAt string
		if err := rows.Scan(&sk.ID, &sk.PaymentID, &sk.Beneficiary, &structure, &sk.Level,
			&reason, &forgone, &createdAt); err != nil {
			return nil, err
		}
		sk.Structure = commission.Structure(structure)
		sk.Reason = commission.SkipReason(reason)
		sk.Forgone = mustDecimal(forgone)
		sk.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		skips = append(skips, sk)
	}
	return skips, rows.Err()
}

// =============================================================================
// ACTIVATION STORE
// =============================================================================

func (s *Store) SetActivation(ctx context.Context, account commission.AccountID, month commission.Month, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activations (account_id, month, active) VALUES (?, ?, ?)
		ON CONFLICT(account_id, month) DO UPDATE SET active = excluded.active`,
		account, month.String(), active)
	return err
}

func (s *Store) Activated(ctx context.Context, account commission.AccountID, month commission.Month) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active bool
	err := s.db.QueryRowContext(ctx,
		`SELECT active FROM activations WHERE account_id = ? AND month = ?`,
		account, month.String()).Scan(&active)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return active, err
}

// =============================================================================
// ROW SCANNING
// =============================================================================

const entrySelect = `
	SELECT id, owner_id, kind, amount, status, structure, level, payment_id, provenance_json, frozen_until, created_at
	FROM entries`

const accountSelect = `
	SELECT id, sponsor_id, registered_at, banned, archived,
	       subscription_from, subscription_until, cached_available
	FROM accounts`

const paymentSelect = `
	SELECT id, payer_id, structure, amount, currency, normalized_amount, ts, exempt
	FROM payments`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]commission.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []commission.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func scanEntry(row rowScanner) (*commission.LedgerEntry, error) {
	var (
		e              commission.LedgerEntry
		kind           string
		amount         string
		status         string
		structure      sql.NullString
		paymentID      sql.NullString
		provenanceJSON sql.NullString
		frozenUntil    sql.NullString
		createdAt      string
	)
	err := row.Scan(&e.ID, &e.Owner, &kind, &amount, &status,
		&structure, &e.Level, &paymentID, &provenanceJSON, &frozenUntil, &createdAt)
	if err != nil {
		return nil, err
	}

	e.Kind = commission.EntryKind(kind)
	e.Amount = mustDecimal(amount)
	e.Status = commission.EntryStatus(status)
	e.Structure = commission.Structure(structure.String)
	e.PaymentID = commission.PaymentID(paymentID.String)
	if provenanceJSON.Valid && provenanceJSON.String != "" {
		json.Unmarshal([]byte(provenanceJSON.String), &e.Provenance)
	}
	if frozenUntil.Valid {
		e.FrozenUntil, _ = time.Parse(time.RFC3339Nano, frozenUntil.String)
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &e, nil
}

func scanAccount(row rowScanner) (*commission.Account, error) {
	var (
		a               commission.Account
		sponsorID       sql.NullString
		registeredAt    string
		subFrom         sql.NullString
		subUntil        sql.NullString
		cachedAvailable string
	)
	err := row.Scan(&a.ID, &sponsorID, &registeredAt, &a.Banned, &a.Archived,
		&subFrom, &subUntil, &cachedAvailable)
	if err != nil {
		return nil, err
	}

	if sponsorID.Valid {
		id := commission.AccountID(sponsorID.String)
		a.SponsorID = &id
	}
	a.RegisteredAt, _ = time.Parse(time.RFC3339Nano, registeredAt)
	if subFrom.Valid {
		t, _ := time.Parse(time.RFC3339Nano, subFrom.String)
		a.SubscriptionFrom = &t
	}
	if subUntil.Valid {
		t, _ := time.Parse(time.RFC3339Nano, subUntil.String)
		a.SubscriptionUntil = &t
	}
	a.CachedAvailable = mustDecimal(cachedAvailable)
	return &a, nil
}

func scanPayment(row rowScanner) (*commission.PaymentEvent, error) {
	var (
		p          commission.PaymentEvent
		structure  string
		amount     string
		normalized string
		ts         string
	)
	err := row.Scan(&p.ID, &p.Payer, &structure, &amount, &p.Currency, &normalized, &ts, &p.Exempt)
	if err != nil {
		return nil, err
	}
	p.Structure = commission.Structure(structure)
	p.Amount = mustDecimal(amount)
	p.NormalizedAmount = mustDecimal(normalized)
	p.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
	return &p, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullableID(id *commission.AccountID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*id), Valid: true}
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeFormat), Valid: true}
}

func nullTimeString(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeFormat), Valid: true}
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isConstraintError(err error, code sqlite3.ErrNoExtended) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == code
}
