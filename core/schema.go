package core

// Idempotent schema bootstrap for the projection store. Safe to run on every
// start; every statement is IF NOT EXISTS or otherwise re-runnable.

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/RyanKung/snaprag/pkg/utils"
)

// SchemaConfig controls the vector side of the schema.
type SchemaConfig struct {
	EmbeddingDimension int
	IndexesEnabled     bool
	IndexLists         int
}

// SchemaBootstrap installs the relational + vector schema the writer
// targets.
type SchemaBootstrap struct {
	db     *Database
	cfg    SchemaConfig
	logger *logrus.Logger
}

// NewSchemaBootstrap wires the installer.
func NewSchemaBootstrap(db *Database, cfg SchemaConfig, lg *logrus.Logger) *SchemaBootstrap {
	if lg == nil {
		lg = logrus.StandardLogger()
	}
	if cfg.EmbeddingDimension <= 0 {
		cfg.EmbeddingDimension = 1536
	}
	if cfg.IndexLists <= 0 {
		cfg.IndexLists = 100
	}
	return &SchemaBootstrap{db: db, cfg: cfg, logger: lg}
}

// Statements returns the DDL in execution order.
func (s *SchemaBootstrap) Statements() []string {
	dim := s.cfg.EmbeddingDimension
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS user_profiles (
			fid BIGINT PRIMARY KEY,
			username TEXT,
			display_name TEXT,
			bio TEXT,
			pfp_url TEXT,
			banner_url TEXT,
			location TEXT,
			website_url TEXT,
			twitter_username TEXT,
			github_username TEXT,
			primary_address_ethereum TEXT,
			primary_address_solana TEXT,
			profile_token TEXT,
			bio_embedding vector(%d),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, dim),

		`CREATE TABLE IF NOT EXISTS user_data_changes (
			id BIGSERIAL PRIMARY KEY,
			fid BIGINT NOT NULL,
			field_name TEXT NOT NULL,
			old_value TEXT,
			new_value TEXT,
			"timestamp" BIGINT NOT NULL,
			message_hash BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			CONSTRAINT user_data_changes_hash_key UNIQUE (message_hash)
		)`,

		`CREATE TABLE IF NOT EXISTS profile_snapshots (
			id BIGSERIAL PRIMARY KEY,
			fid BIGINT NOT NULL,
			snapshot JSONB NOT NULL,
			"timestamp" BIGINT NOT NULL,
			message_hash BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			CONSTRAINT profile_snapshots_hash_key UNIQUE (message_hash)
		)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS casts (
			hash BYTEA PRIMARY KEY,
			fid BIGINT NOT NULL,
			text TEXT NOT NULL DEFAULT '',
			"timestamp" BIGINT NOT NULL,
			parent_hash BYTEA,
			parent_fid BIGINT,
			mentions JSONB,
			embeds JSONB,
			shard_id INTEGER,
			block_height BIGINT,
			embedding vector(%d),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, dim),

		`CREATE TABLE IF NOT EXISTS links (
			hash BYTEA PRIMARY KEY,
			fid BIGINT NOT NULL,
			target_fid BIGINT NOT NULL,
			link_type TEXT NOT NULL,
			"timestamp" BIGINT NOT NULL,
			shard_id INTEGER,
			block_height BIGINT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,

		`CREATE TABLE IF NOT EXISTS reactions (
			hash BYTEA PRIMARY KEY,
			fid BIGINT NOT NULL,
			target_cast_hash BYTEA NOT NULL,
			target_fid BIGINT,
			reaction_type SMALLINT NOT NULL,
			"timestamp" BIGINT NOT NULL,
			shard_id INTEGER,
			block_height BIGINT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,

		`CREATE TABLE IF NOT EXISTS verifications (
			hash BYTEA PRIMARY KEY,
			fid BIGINT NOT NULL,
			address TEXT NOT NULL,
			claim_signature BYTEA,
			block_hash BYTEA,
			verification_type SMALLINT,
			chain_id INTEGER,
			"timestamp" BIGINT NOT NULL,
			shard_id INTEGER,
			block_height BIGINT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,

		`CREATE TABLE IF NOT EXISTS activities (
			id BIGSERIAL PRIMARY KEY,
			fid BIGINT NOT NULL,
			activity_type TEXT NOT NULL,
			activity_data JSONB,
			"timestamp" BIGINT NOT NULL,
			message_hash BYTEA NOT NULL,
			shard_id INTEGER,
			block_height BIGINT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			CONSTRAINT activities_hash_key UNIQUE (message_hash)
		)`,

		`CREATE TABLE IF NOT EXISTS username_proofs (
			hash BYTEA PRIMARY KEY,
			fid BIGINT NOT NULL,
			name TEXT NOT NULL,
			owner TEXT,
			proof_type SMALLINT,
			"timestamp" BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,

		`CREATE TABLE IF NOT EXISTS shard_cursors (
			shard_id INTEGER PRIMARY KEY,
			last_applied_block BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,

		`CREATE INDEX IF NOT EXISTS idx_casts_fid ON casts (fid)`,
		`CREATE INDEX IF NOT EXISTS idx_casts_timestamp ON casts ("timestamp")`,
		`CREATE INDEX IF NOT EXISTS idx_links_fid ON links (fid)`,
		`CREATE INDEX IF NOT EXISTS idx_links_target_fid ON links (target_fid)`,
		`CREATE INDEX IF NOT EXISTS idx_reactions_target ON reactions (target_cast_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_activities_fid_ts ON activities (fid, "timestamp")`,
		`CREATE INDEX IF NOT EXISTS idx_user_data_changes_lww
			ON user_data_changes (fid, field_name, "timestamp", message_hash)`,
	}
	if s.cfg.IndexesEnabled {
		stmts = append(stmts,
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_casts_embedding
				ON casts USING ivfflat (embedding vector_cosine_ops) WITH (lists = %d)`, s.cfg.IndexLists),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_profiles_bio_embedding
				ON user_profiles USING ivfflat (bio_embedding vector_cosine_ops) WITH (lists = %d)`, s.cfg.IndexLists),
		)
	}
	return stmts
}

// Install runs the DDL against the store.
func (s *SchemaBootstrap) Install(ctx context.Context) error {
	for _, stmt := range s.Statements() {
		if _, err := s.db.Pool().Exec(ctx, stmt); err != nil {
			return utils.Wrap(err, "install schema")
		}
	}
	s.logger.Info("schema bootstrap complete")
	return nil
}
