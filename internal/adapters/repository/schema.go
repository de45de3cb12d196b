package repository

// migrations returns the schema, one statement per entry. Every statement is
// idempotent so the list is replayed on each open.
func migrations() []string {
	return []string{
		// Single-use ledger. The primary key is the claim authority.
		`CREATE TABLE IF NOT EXISTS claims (
			event_id    TEXT PRIMARY KEY,
			type        TEXT NOT NULL,
			subject     TEXT NOT NULL DEFAULT '',
			consumed_by TEXT NOT NULL,
			consumed_at INTEGER NOT NULL,
			expires_at  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_claims_expires_at ON claims(expires_at)`,

		`CREATE TABLE IF NOT EXISTS cooldowns (
			user_id          TEXT PRIMARY KEY,
			next_eligible_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS coupons (
			code        TEXT PRIMARY KEY,
			owner_id    TEXT NOT NULL,
			prize_id    TEXT NOT NULL,
			issued_at   INTEGER NOT NULL,
			expires_at  INTEGER NOT NULL,
			redeemed_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_coupons_owner ON coupons(owner_id, issued_at)`,
		`CREATE INDEX IF NOT EXISTS idx_coupons_expires_at ON coupons(expires_at)`,

		`CREATE TABLE IF NOT EXISTS risk_events (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			kind    TEXT NOT NULL,
			ref     TEXT NOT NULL DEFAULT '',
			at      INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_risk_events_user_at ON risk_events(user_id, at)`,
		`CREATE INDEX IF NOT EXISTS idx_risk_events_at ON risk_events(at)`,
		`CREATE TABLE IF NOT EXISTS risk_profiles (
			user_id    TEXT PRIMARY KEY,
			score      REAL NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS identities (
			id           TEXT PRIMARY KEY,
			display_name TEXT NOT NULL DEFAULT '',
			role         TEXT NOT NULL DEFAULT 'guest',
			visit_count  INTEGER NOT NULL DEFAULT 0
		)`,
		// Visit counts follow claims in the same statement, so they survive
		// claim pruning and never double count.
		`CREATE TRIGGER IF NOT EXISTS trg_claims_visit_count
		AFTER INSERT ON claims
		WHEN NEW.type = 'visit' AND NEW.subject <> ''
		BEGIN
			INSERT OR IGNORE INTO identities(id) VALUES (NEW.subject);
			UPDATE identities SET visit_count = visit_count + 1 WHERE id = NEW.subject;
		END`,
	}
}
