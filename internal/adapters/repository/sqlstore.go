package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/okian/attest/internal/domain/model"
	"github.com/okian/attest/internal/domain/risk"
	"github.com/okian/attest/pkg/metrics"

	_ "modernc.org/sqlite"
)

// SQLStore implements every ledger on SQLite. Mutations are single
// conditional statements, so atomicity comes from the database rather than
// from locks in this process.
type SQLStore struct {
	db   *sql.DB
	opts options
}

var _ Store = (*SQLStore)(nil)

// OpenSQL opens (creating if needed) the database at path and applies the
// schema. Use MemoryDSN for a throwaway database.
func OpenSQL(ctx context.Context, path string, opts ...Option) (*SQLStore, error) {
	dsn, err := FileDSN(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY churn
	// and keeps an in-memory database shared across callers.
	db.SetMaxOpenConns(1)

	for _, stmt := range migrations() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &SQLStore{db: db, opts: o}, nil
}

// Times are stored as unix nanoseconds, saturated at the int64 range so a far
// future instant never wraps into the past.
var (
	minNanoTime = time.Unix(0, math.MinInt64)
	maxNanoTime = time.Unix(0, math.MaxInt64)
)

func nanos(t time.Time) int64 {
	switch {
	case t.After(maxNanoTime):
		return math.MaxInt64
	case t.Before(minNanoTime):
		return math.MinInt64
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

// Claim implements ClaimLedger.
func (s *SQLStore) Claim(ctx context.Context, c model.Claim) error {
	defer metrics.ObserveLedger(LedgerClaims, "claim", time.Now())
	if c.EventID == "" {
		return fmt.Errorf("%w: empty event id", ErrInvalidArgument)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO claims(event_id, type, subject, consumed_by, consumed_at, expires_at)
		VALUES(?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO NOTHING
	`, c.EventID, c.Type, c.Subject, c.ConsumedBy, nanos(c.ConsumedAt), nanos(c.ExpiresAt))
	if err != nil {
		return unavailable(LedgerClaims, "claim", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return unavailable(LedgerClaims, "claim", err)
	}
	if affected == 0 {
		return ErrAlreadyUsed
	}
	return nil
}

// PruneClaims implements ClaimLedger.
func (s *SQLStore) PruneClaims(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.prune(ctx, LedgerClaims, `DELETE FROM claims WHERE expires_at < ?`, cutoff)
}

// TryAdvance implements CooldownGate. The upsert only rewrites the row when
// the stored time has passed; zero affected rows means denied.
func (s *SQLStore) TryAdvance(ctx context.Context, userID string, now time.Time, period time.Duration) (model.CooldownDecision, error) {
	defer metrics.ObserveLedger(LedgerCooldowns, "try_advance", time.Now())
	if userID == "" || period <= 0 {
		return model.CooldownDecision{}, fmt.Errorf("%w: user and positive period required", ErrInvalidArgument)
	}
	next := now.UTC().Add(period)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO cooldowns(user_id, next_eligible_at) VALUES(?, ?)
		ON CONFLICT(user_id) DO UPDATE SET next_eligible_at = excluded.next_eligible_at
		WHERE cooldowns.next_eligible_at <= ?
	`, userID, nanos(next), nanos(now))
	if err != nil {
		return model.CooldownDecision{}, unavailable(LedgerCooldowns, "try_advance", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return model.CooldownDecision{}, unavailable(LedgerCooldowns, "try_advance", err)
	}
	if affected == 1 {
		return model.CooldownDecision{Allowed: true, NextEligibleAt: next}, nil
	}
	existing, err := s.Peek(ctx, userID)
	if err != nil {
		return model.CooldownDecision{}, err
	}
	return model.CooldownDecision{Allowed: false, NextEligibleAt: existing}, nil
}

// Peek implements CooldownGate.
func (s *SQLStore) Peek(ctx context.Context, userID string) (time.Time, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT next_eligible_at FROM cooldowns WHERE user_id = ?`, userID).Scan(&n)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return time.Time{}, nil
	case err != nil:
		return time.Time{}, unavailable(LedgerCooldowns, "peek", err)
	}
	return fromNanos(n), nil
}

// Issue implements CouponLedger.
func (s *SQLStore) Issue(ctx context.Context, ownerID, prizeID string, issuedAt time.Time, validity time.Duration) (model.Coupon, error) {
	defer metrics.ObserveLedger(LedgerCoupons, "issue", time.Now())
	return issueCoupon(ctx, s.opts, ownerID, prizeID, issuedAt, validity, s.insertCoupon)
}

func (s *SQLStore) insertCoupon(ctx context.Context, c model.Coupon) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO coupons(code, owner_id, prize_id, issued_at, expires_at)
		VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(code) DO NOTHING
	`, c.Code, c.OwnerID, c.PrizeID, nanos(c.IssuedAt), nanos(c.ExpiresAt))
	if err != nil {
		return false, unavailable(LedgerCoupons, "issue", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, unavailable(LedgerCoupons, "issue", err)
	}
	return affected == 1, nil
}

// Redeem implements CouponLedger. The guarded update is the only write; the
// follow-up read classifies a rejection.
func (s *SQLStore) Redeem(ctx context.Context, code string, now time.Time) (model.Coupon, error) {
	defer metrics.ObserveLedger(LedgerCoupons, "redeem", time.Now())
	code = NormalizeCode(code)
	res, err := s.db.ExecContext(ctx, `
		UPDATE coupons SET redeemed_at = ?
		WHERE code = ? AND redeemed_at IS NULL AND expires_at >= ?
	`, nanos(now), code, nanos(now))
	if err != nil {
		return model.Coupon{}, unavailable(LedgerCoupons, "redeem", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return model.Coupon{}, unavailable(LedgerCoupons, "redeem", err)
	}
	c, err := s.Get(ctx, code)
	if err != nil {
		return model.Coupon{}, err
	}
	if affected == 1 {
		return c, nil
	}
	if c.RedeemedAt != nil {
		return c, ErrAlreadyRedeemed
	}
	return c, ErrCouponExpired
}

const couponColumns = `code, owner_id, prize_id, issued_at, expires_at, redeemed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCoupon(r rowScanner) (model.Coupon, error) {
	var (
		c               model.Coupon
		issued, expires int64
		redeemed        sql.NullInt64
	)
	if err := r.Scan(&c.Code, &c.OwnerID, &c.PrizeID, &issued, &expires, &redeemed); err != nil {
		return model.Coupon{}, err
	}
	c.IssuedAt = fromNanos(issued)
	c.ExpiresAt = fromNanos(expires)
	if redeemed.Valid {
		at := fromNanos(redeemed.Int64)
		c.RedeemedAt = &at
	}
	return c, nil
}

// Get implements CouponLedger.
func (s *SQLStore) Get(ctx context.Context, code string) (model.Coupon, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code = ?`, NormalizeCode(code))
	c, err := scanCoupon(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return model.Coupon{}, ErrCouponNotFound
	case err != nil:
		return model.Coupon{}, unavailable(LedgerCoupons, "get", err)
	}
	return c, nil
}

// ListByOwner implements CouponLedger.
func (s *SQLStore) ListByOwner(ctx context.Context, ownerID string) ([]model.Coupon, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+couponColumns+` FROM coupons
		WHERE owner_id = ?
		ORDER BY issued_at DESC, code ASC
	`, ownerID)
	if err != nil {
		return nil, unavailable(LedgerCoupons, "list", err)
	}
	defer func() { _ = rows.Close() }()
	out := make([]model.Coupon, 0)
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, unavailable(LedgerCoupons, "list", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(LedgerCoupons, "list", err)
	}
	return out, nil
}

// PruneCoupons implements CouponLedger.
func (s *SQLStore) PruneCoupons(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.prune(ctx, LedgerCoupons, `DELETE FROM coupons WHERE expires_at < ?`, cutoff)
}

// AppendEvent implements RiskLedger.
func (s *SQLStore) AppendEvent(ctx context.Context, e risk.Event) error {
	defer metrics.ObserveLedger(LedgerRisk, "append", time.Now())
	if e.UserID == "" {
		return fmt.Errorf("%w: empty user id", ErrInvalidArgument)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO risk_events(user_id, kind, ref, at) VALUES(?, ?, ?, ?)
	`, e.UserID, string(e.Kind), e.Ref, nanos(e.At))
	if err != nil {
		return unavailable(LedgerRisk, "append", err)
	}
	return nil
}

// Events implements RiskLedger.
func (s *SQLStore) Events(ctx context.Context, userID string, since time.Time) ([]risk.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, ref, at FROM risk_events
		WHERE user_id = ? AND at >= ?
		ORDER BY at ASC, id ASC
	`, userID, nanos(since))
	if err != nil {
		return nil, unavailable(LedgerRisk, "events", err)
	}
	defer func() { _ = rows.Close() }()
	out := make([]risk.Event, 0)
	for rows.Next() {
		var (
			kind, ref string
			at        int64
		)
		if err := rows.Scan(&kind, &ref, &at); err != nil {
			return nil, unavailable(LedgerRisk, "events", err)
		}
		out = append(out, risk.Event{Kind: risk.Kind(kind), UserID: userID, At: fromNanos(at), Ref: ref})
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(LedgerRisk, "events", err)
	}
	return out, nil
}

// AddScore implements RiskLedger.
func (s *SQLStore) AddScore(ctx context.Context, userID string, delta float64, at time.Time) (risk.Profile, error) {
	defer metrics.ObserveLedger(LedgerRisk, "add_score", time.Now())
	var score float64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO risk_profiles(user_id, score, updated_at) VALUES(?, max(0, ?), ?)
		ON CONFLICT(user_id) DO UPDATE SET
			score = max(0, risk_profiles.score + ?),
			updated_at = excluded.updated_at
		RETURNING score
	`, userID, delta, nanos(at), delta).Scan(&score)
	if err != nil {
		return risk.Profile{}, unavailable(LedgerRisk, "add_score", err)
	}
	return risk.Profile{UserID: userID, Score: score, LastUpdatedAt: at.UTC()}, nil
}

// SaveProfile implements RiskLedger.
func (s *SQLStore) SaveProfile(ctx context.Context, p risk.Profile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO risk_profiles(user_id, score, updated_at) VALUES(?, max(0, ?), ?)
		ON CONFLICT(user_id) DO UPDATE SET score = excluded.score, updated_at = excluded.updated_at
	`, p.UserID, p.Score, nanos(p.LastUpdatedAt))
	if err != nil {
		return unavailable(LedgerRisk, "save_profile", err)
	}
	return nil
}

// Profile implements RiskLedger.
func (s *SQLStore) Profile(ctx context.Context, userID string) (risk.Profile, error) {
	p := risk.Profile{UserID: userID}
	var at int64
	err := s.db.QueryRowContext(ctx, `SELECT score, updated_at FROM risk_profiles WHERE user_id = ?`, userID).Scan(&p.Score, &at)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return risk.Profile{}, ErrNotFound
	case err != nil:
		return risk.Profile{}, unavailable(LedgerRisk, "profile", err)
	}
	p.LastUpdatedAt = fromNanos(at)
	return p, nil
}

// PruneEvents implements RiskLedger.
func (s *SQLStore) PruneEvents(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.prune(ctx, LedgerRisk, `DELETE FROM risk_events WHERE at < ?`, cutoff)
}

// Resolve implements IdentityDirectory.
func (s *SQLStore) Resolve(ctx context.Context, id string) (model.Identity, error) {
	out := model.Identity{ID: id}
	err := s.db.QueryRowContext(ctx, `
		SELECT display_name, role, visit_count FROM identities WHERE id = ?
	`, id).Scan(&out.DisplayName, &out.Role, &out.HistoricalVisitCount)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return model.Identity{ID: id, Role: model.RoleGuest}, nil
	case err != nil:
		return model.Identity{}, unavailable(LedgerIdentity, "resolve", err)
	}
	if out.Role == "" {
		out.Role = model.RoleGuest
	}
	return out, nil
}

// UpsertIdentity implements IdentityDirectory.
func (s *SQLStore) UpsertIdentity(ctx context.Context, in model.Identity) error {
	if strings.TrimSpace(in.ID) == "" {
		return fmt.Errorf("%w: empty identity id", ErrInvalidArgument)
	}
	role := in.Role
	if role == "" {
		role = model.RoleGuest
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO identities(id, display_name, role) VALUES(?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET display_name = excluded.display_name, role = excluded.role
	`, in.ID, in.DisplayName, role)
	if err != nil {
		return unavailable(LedgerIdentity, "upsert", err)
	}
	return nil
}

// Stats implements Store.
func (s *SQLStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM claims),
			(SELECT COUNT(*) FROM coupons),
			(SELECT COUNT(*) FROM coupons WHERE redeemed_at IS NOT NULL),
			(SELECT COUNT(*) FROM cooldowns),
			(SELECT COUNT(*) FROM risk_events),
			(SELECT COUNT(*) FROM identities)
	`).Scan(&st.Claims, &st.Coupons, &st.RedeemedCoupons, &st.CooldownUsers, &st.RiskEvents, &st.Identities)
	if err != nil {
		return Stats{}, unavailable("store", "stats", err)
	}
	return st, nil
}

// Ping implements Store.
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("store", "ping", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLStore) prune(ctx context.Context, ledger, stmt string, cutoff time.Time) (int64, error) {
	defer metrics.ObserveLedger(ledger, "prune", time.Now())
	res, err := s.db.ExecContext(ctx, stmt, nanos(cutoff))
	if err != nil {
		return 0, unavailable(ledger, "prune", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable(ledger, "prune", err)
	}
	return n, nil
}
