package migrations

import (
	"context"
	"time"

	"github.com/AnhTuanDangJT/FinStep-sub000/src/migration/types"
	"github.com/jackc/pgx/v5"
)

func init() {
	registerMigration(CreateCredibilityTables{})
}

type CreateCredibilityTables struct{}

func (m CreateCredibilityTables) Version() types.MigrationVersion {
	return types.MigrationVersion(time.Date(2026, 3, 2, 10, 15, 0, 0, time.UTC))
}

func (m CreateCredibilityTables) Name() string {
	return "CreateCredibilityTables"
}

func (m CreateCredibilityTables) Description() string {
	return "Create accounts, posts, the credibility ledger, and the audit log"
}

func (m CreateCredibilityTables) Up(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx,
		`
		CREATE TABLE account (
			id SERIAL PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL DEFAULT '',
			is_admin BOOLEAN NOT NULL DEFAULT FALSE,
			score INTEGER NOT NULL CHECK (score BETWEEN 0 AND 100),
			initial_score INTEGER NOT NULL,
			is_suspended BOOLEAN NOT NULL DEFAULT FALSE,
			is_soft_banned BOOLEAN NOT NULL DEFAULT FALSE,
			credibility_level TEXT NOT NULL,
			credibility_level_source TEXT NOT NULL,
			credibility_updated_by TEXT,
			credibility_updated_at TIMESTAMP WITH TIME ZONE,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL
		);

		CREATE TABLE post (
			id SERIAL PRIMARY KEY,
			public_id UUID NOT NULL UNIQUE,
			slug TEXT NOT NULL UNIQUE,
			author_id INTEGER NOT NULL REFERENCES account (id),
			author_name TEXT NOT NULL,
			author_email TEXT NOT NULL,
			title TEXT NOT NULL,
			body TEXT NOT NULL,
			status INTEGER NOT NULL,
			rejection_reason TEXT,
			reviewed_by TEXT,
			reviewed_at TIMESTAMP WITH TIME ZONE,
			approved_at TIMESTAMP WITH TIME ZONE,
			grade INTEGER CHECK (grade BETWEEN 0 AND 100),
			grade_label TEXT,
			graded_at TIMESTAMP WITH TIME ZONE,
			graded_by TEXT,
			credibility_delta_applied INTEGER NOT NULL DEFAULT 0,
			deleted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL
		);

		CREATE INDEX post_author_email ON post (author_email);

		CREATE TABLE credibility_ledger (
			id BIGSERIAL PRIMARY KEY,
			subject_email TEXT NOT NULL,
			related_post_id INTEGER REFERENCES post (id),
			action_type TEXT NOT NULL,
			delta INTEGER NOT NULL,
			requested_delta DOUBLE PRECISION NOT NULL,
			previous_score INTEGER NOT NULL,
			new_score INTEGER NOT NULL,
			acting_admin_email TEXT NOT NULL,
			reason TEXT,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL
		);

		CREATE INDEX credibility_ledger_subject ON credibility_ledger (subject_email, created_at, id);

		CREATE FUNCTION credibility_ledger_append_only() RETURNS trigger AS $$
		BEGIN
			RAISE EXCEPTION 'credibility ledger is append-only';
		END;
		$$ LANGUAGE plpgsql;

		CREATE TRIGGER credibility_ledger_no_modify
			BEFORE UPDATE OR DELETE ON credibility_ledger
			FOR EACH ROW EXECUTE FUNCTION credibility_ledger_append_only();

		CREATE TABLE audit_log (
			id UUID PRIMARY KEY,
			actor_email TEXT NOT NULL,
			action TEXT NOT NULL,
			target TEXT NOT NULL,
			details TEXT NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL
		);
		`,
	)
	return err
}

func (m CreateCredibilityTables) Down(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx,
		`
		DROP TABLE audit_log;
		DROP TABLE credibility_ledger;
		DROP FUNCTION credibility_ledger_append_only;
		DROP TABLE post;
		DROP TABLE account;
		`,
	)
	return err
}
