package db

var schema = []string{
	`CREATE TABLE IF NOT EXISTS wallets (
		account_id TEXT PRIMARY KEY,
		currency   TEXT NOT NULL,
		balance    BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_entries (
		id              UUID PRIMARY KEY,
		account_id      TEXT NOT NULL REFERENCES wallets (account_id),
		delta           BIGINT NOT NULL,
		idempotency_key TEXT NOT NULL,
		balance_after   BIGINT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT ledger_entries_idempotency_key_key UNIQUE (idempotency_key)
	)`,
	`CREATE INDEX IF NOT EXISTS ledger_entries_account_id_idx ON ledger_entries (account_id)`,
	`CREATE TABLE IF NOT EXISTS participants (
		id                TEXT PRIMARY KEY,
		display_name      TEXT NOT NULL,
		wallet_account_id TEXT NOT NULL UNIQUE REFERENCES wallets (account_id),
		secret_hash       TEXT NOT NULL,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS matches (
		code                TEXT NOT NULL,
		phase               TEXT NOT NULL,
		game_type           TEXT NOT NULL,
		stake_amount        BIGINT NOT NULL CHECK (stake_amount > 0),
		stake_currency      TEXT NOT NULL,
		initiator_id        TEXT NOT NULL REFERENCES participants (id),
		joiner_id           TEXT REFERENCES participants (id),
		pot                 BIGINT,
		payout              BIGINT,
		fee                 BIGINT,
		initiator_ready     BOOLEAN NOT NULL DEFAULT FALSE,
		joiner_ready        BOOLEAN NOT NULL DEFAULT FALSE,
		initiator_escrowed  BOOLEAN NOT NULL DEFAULT FALSE,
		joiner_escrowed     BOOLEAN NOT NULL DEFAULT FALSE,
		initiator_score     DOUBLE PRECISION,
		joiner_score        DOUBLE PRECISION,
		initiator_scored_at TIMESTAMPTZ,
		joiner_scored_at    TIMESTAMPTZ,
		winner_id           TEXT REFERENCES participants (id),
		settlement_state    TEXT NOT NULL DEFAULT 'none',
		created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_transition_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		completed_at        TIMESTAMPTZ,
		CONSTRAINT matches_pkey PRIMARY KEY (code),
		CONSTRAINT matches_pot_check CHECK (pot IS NULL OR pot = 2 * stake_amount)
	)`,
	`CREATE INDEX IF NOT EXISTS matches_phase_transition_idx ON matches (phase, last_transition_at)`,
	`CREATE OR REPLACE FUNCTION notify_match_change() RETURNS trigger AS $$
	BEGIN
		PERFORM pg_notify('match_changes', NEW.code);
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS matches_notify_change ON matches`,
	`CREATE TRIGGER matches_notify_change
		AFTER INSERT OR UPDATE ON matches
		FOR EACH ROW EXECUTE FUNCTION notify_match_change()`,
}
