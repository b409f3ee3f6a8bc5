package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/referral-cli/internal/db"
	"github.com/sells-group/referral-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"get_configuration":    pgGetConfiguration,
	"insert_configuration": pgInsertConfiguration,
	"insert_decision":      pgInsertDecision,
}

const (
	pgGetConfiguration    = `SELECT config FROM referral_configurations WHERE id = $1 ORDER BY version DESC LIMIT 1`
	pgInsertConfiguration = `INSERT INTO referral_configurations (id, version, name, config, created_at) VALUES ($1, $2, $3, $4, $5)`
	pgInsertDecision      = `INSERT INTO referral_decisions (id, referral_id, configuration_id, configuration_version, config_hash, recommendation, weighted_score, decision, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
)

var decisionColumns = []string{
	"id", "referral_id", "configuration_id", "configuration_version",
	"config_hash", "recommendation", "weighted_score", "decision", "created_at",
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS referral_configurations (
	id         TEXT NOT NULL,
	version    INTEGER NOT NULL,
	name       TEXT NOT NULL,
	config     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (id, version)
);

CREATE TABLE IF NOT EXISTS referral_decisions (
	id                    TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	referral_id           TEXT NOT NULL,
	configuration_id      TEXT NOT NULL,
	configuration_version INTEGER NOT NULL,
	config_hash           TEXT NOT NULL DEFAULT '',
	recommendation        TEXT NOT NULL,
	weighted_score        DOUBLE PRECISION NOT NULL,
	decision              JSONB NOT NULL,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_referral_decisions_referral_id ON referral_decisions(referral_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_referral_decisions_config ON referral_decisions(configuration_id, configuration_version);
CREATE INDEX IF NOT EXISTS idx_referral_decisions_recommendation ON referral_decisions(recommendation);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) GetConfiguration(ctx context.Context, id string) (*model.ReferralConfiguration, error) {
	cfg, err := scanPgConfiguration(s.pool.QueryRow(ctx, pgGetConfiguration, id))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get configuration %s", id)
	}
	return cfg, nil
}

func (s *PostgresStore) GetConfigurationVersion(ctx context.Context, id string, version int) (*model.ReferralConfiguration, error) {
	cfg, err := scanPgConfiguration(s.pool.QueryRow(ctx,
		`SELECT config FROM referral_configurations WHERE id = $1 AND version = $2`,
		id, version,
	))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get configuration %s v%d", id, version)
	}
	return cfg, nil
}

// SaveConfiguration stores cfg as the next version of its ID. The row lock
// on the previous head serialises concurrent saves of the same ID; the
// primary key rejects a racing insert of a brand new ID.
func (s *PostgresStore) SaveConfiguration(ctx context.Context, cfg *model.ReferralConfiguration) (*model.ReferralConfiguration, error) {
	var saved *model.ReferralConfiguration
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		prev, err := scanPgConfiguration(tx.QueryRow(ctx,
			`SELECT config FROM referral_configurations WHERE id = $1 ORDER BY version DESC LIMIT 1 FOR UPDATE`,
			cfg.ID,
		))
		if err != nil && !errors.Is(err, ErrNotFound) {
			return eris.Wrapf(err, "postgres: load previous configuration %s", cfg.ID)
		}

		saved = nextVersion(cfg, prev, time.Now().UTC())
		data, err := json.Marshal(saved)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal configuration")
		}
		_, err = tx.Exec(ctx, pgInsertConfiguration, saved.ID, saved.Version, saved.Name, data, saved.UpdatedAt)
		return eris.Wrapf(err, "postgres: insert configuration %s", saved.ID)
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *PostgresStore) ListConfigurations(ctx context.Context, filter ListFilter) ([]model.ReferralConfiguration, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT ON (id) config FROM referral_configurations
		 ORDER BY id, version DESC LIMIT $1 OFFSET $2`,
		filter.limit(), filter.offset(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list configurations")
	}
	defer rows.Close()

	var out []model.ReferralConfiguration
	for rows.Next() {
		cfg, err := scanPgConfiguration(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: list configurations")
		}
		out = append(out, *cfg)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list configurations iterate")
}

func (s *PostgresStore) SaveDecision(ctx context.Context, rec DecisionRecord) error {
	args, err := decisionArgs(rec)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, pgInsertDecision, args...)
	return eris.Wrapf(err, "postgres: insert decision %s", rec.ID)
}

// SaveDecisions bulk-inserts decision records with COPY.
func (s *PostgresStore) SaveDecisions(ctx context.Context, recs []DecisionRecord) error {
	rows := make([][]any, 0, len(recs))
	for _, rec := range recs {
		args, err := decisionArgs(rec)
		if err != nil {
			return err
		}
		rows = append(rows, args)
	}
	_, err := db.CopyFrom(ctx, s.pool, "referral_decisions", decisionColumns, rows)
	return eris.Wrap(err, "postgres: save decisions")
}

func (s *PostgresStore) ListDecisions(ctx context.Context, referralID string, filter ListFilter) ([]DecisionRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, referral_id, configuration_id, configuration_version, config_hash, recommendation, weighted_score, decision, created_at
		 FROM referral_decisions WHERE referral_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		referralID, filter.limit(), filter.offset(),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list decisions %s", referralID)
	}
	defer rows.Close()

	var out []DecisionRecord
	for rows.Next() {
		var rec DecisionRecord
		var recommendation string
		var decisionJSON []byte
		if err := rows.Scan(&rec.ID, &rec.ReferralID, &rec.ConfigurationID, &rec.ConfigurationVersion,
			&rec.ConfigHash, &recommendation, &rec.WeightedScore, &decisionJSON, &rec.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan decision")
		}
		rec.Recommendation = model.Recommendation(recommendation)
		if err := unmarshalDecision(decisionJSON, &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list decisions iterate")
}

func scanPgConfiguration(row pgx.Row) (*model.ReferralConfiguration, error) {
	var data []byte
	err := row.Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
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
