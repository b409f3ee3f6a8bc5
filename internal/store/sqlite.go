package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/referral-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas are per connection; a single connection keeps them in force
	// and serialises writers.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS referral_configurations (
	id         TEXT NOT NULL,
	version    INTEGER NOT NULL,
	name       TEXT NOT NULL,
	config     TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (id, version)
);

CREATE TABLE IF NOT EXISTS referral_decisions (
	id                    TEXT PRIMARY KEY,
	referral_id           TEXT NOT NULL,
	configuration_id      TEXT NOT NULL,
	configuration_version INTEGER NOT NULL,
	config_hash           TEXT NOT NULL DEFAULT '',
	recommendation        TEXT NOT NULL,
	weighted_score        REAL NOT NULL,
	decision              TEXT NOT NULL,
	created_at            DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_referral_decisions_referral_id ON referral_decisions(referral_id, created_at);
CREATE INDEX IF NOT EXISTS idx_referral_decisions_config ON referral_decisions(configuration_id, configuration_version);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetConfiguration(ctx context.Context, id string) (*model.ReferralConfiguration, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT config FROM referral_configurations WHERE id = ? ORDER BY version DESC LIMIT 1`,
		id,
	)
	cfg, err := scanConfiguration(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get configuration %s", id)
	}
	return cfg, nil
}

func (s *SQLiteStore) GetConfigurationVersion(ctx context.Context, id string, version int) (*model.ReferralConfiguration, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT config FROM referral_configurations WHERE id = ? AND version = ?`,
		id, version,
	)
	cfg, err := scanConfiguration(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get configuration %s v%d", id, version)
	}
	return cfg, nil
}

func (s *SQLiteStore) SaveConfiguration(ctx context.Context, cfg *model.ReferralConfiguration) (*model.ReferralConfiguration, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	prev, err := scanConfiguration(tx.QueryRowContext(ctx,
		`SELECT config FROM referral_configurations WHERE id = ? ORDER BY version DESC LIMIT 1`,
		cfg.ID,
	))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, eris.Wrapf(err, "sqlite: load previous configuration %s", cfg.ID)
	}

	saved := nextVersion(cfg, prev, time.Now().UTC())
	data, err := json.Marshal(saved)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal configuration")
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO referral_configurations (id, version, name, config, created_at) VALUES (?, ?, ?, ?, ?)`,
		saved.ID, saved.Version, saved.Name, string(data), saved.UpdatedAt,
	); err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert configuration %s", saved.ID)
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit configuration")
	}
	return saved, nil
}

func (s *SQLiteStore) ListConfigurations(ctx context.Context, filter ListFilter) ([]model.ReferralConfiguration, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.config FROM referral_configurations c
		 WHERE c.version = (SELECT MAX(version) FROM referral_configurations WHERE id = c.id)
		 ORDER BY c.id LIMIT ? OFFSET ?`,
		filter.limit(), filter.offset(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list configurations")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ReferralConfiguration
	for rows.Next() {
		cfg, err := scanConfiguration(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: list configurations")
		}
		out = append(out, *cfg)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list configurations iterate")
}

const sqliteInsertDecision = `INSERT INTO referral_decisions
	(id, referral_id, configuration_id, configuration_version, config_hash, recommendation, weighted_score, decision, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (s *SQLiteStore) SaveDecision(ctx context.Context, rec DecisionRecord) error {
	args, err := decisionArgs(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, sqliteInsertDecision, args...)
	return eris.Wrapf(err, "sqlite: insert decision %s", rec.ID)
}

func (s *SQLiteStore) SaveDecisions(ctx context.Context, recs []DecisionRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, sqliteInsertDecision)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert decision")
	}
	defer stmt.Close() //nolint:errcheck

	for _, rec := range recs {
		args, err := decisionArgs(rec)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return eris.Wrapf(err, "sqlite: insert decision %s", rec.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit decisions")
}

func (s *SQLiteStore) ListDecisions(ctx context.Context, referralID string, filter ListFilter) ([]DecisionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, referral_id, configuration_id, configuration_version, config_hash, recommendation, weighted_score, decision, created_at
		 FROM referral_decisions WHERE referral_id = ?
		 ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		referralID, filter.limit(), filter.offset(),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list decisions %s", referralID)
	}
	defer rows.Close() //nolint:errcheck

	var out []DecisionRecord
	for rows.Next() {
		var rec DecisionRecord
		var decisionJSON string
		if err := rows.Scan(&rec.ID, &rec.ReferralID, &rec.ConfigurationID, &rec.ConfigurationVersion,
			&rec.ConfigHash, &rec.Recommendation, &rec.WeightedScore, &decisionJSON, &rec.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan decision")
		}
		if err := unmarshalDecision([]byte(decisionJSON), &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list decisions iterate")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanConfiguration(row scannable) (*model.ReferralConfiguration, error) {
	var data []byte
	err := row.Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan configuration")
	}
	var cfg model.ReferralConfiguration
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, eris.Wrap(err, "unmarshal configuration")
	}
	return &cfg, nil
}

func decisionArgs(rec DecisionRecord) ([]any, error) {
	data, err := json.Marshal(rec.Decision)
	if err != nil {
		return nil, eris.Wrap(err, "marshal decision")
	}
	return []any{
		rec.ID, rec.ReferralID, rec.ConfigurationID, rec.ConfigurationVersion,
		rec.ConfigHash, string(rec.Recommendation), rec.WeightedScore, string(data), rec.CreatedAt,
	}, nil
}

func unmarshalDecision(data []byte, rec *DecisionRecord) error {
	rec.Decision = &model.ReferralDecisionFactors{}
	return eris.Wrap(json.Unmarshal(data, rec.Decision), "unmarshal decision")
}
