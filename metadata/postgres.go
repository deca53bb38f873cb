package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	digestpkg "github.com/distribution-core/registry/digest"
)

// schema is applied once at startup; CREATE TABLE IF NOT EXISTS keeps it
// idempotent across restarts so no separate migration tool is required for
// this index's five tables.
const schema = `
CREATE TABLE IF NOT EXISTS repositories (
	name       TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS manifests (
	digest     TEXT PRIMARY KEY,
	media_type TEXT NOT NULL,
	repo       TEXT NOT NULL REFERENCES repositories(name),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS manifest_refs (
	manifest_digest    TEXT NOT NULL REFERENCES manifests(digest) ON DELETE CASCADE,
	referenced_digest  TEXT NOT NULL,
	PRIMARY KEY (manifest_digest, referenced_digest)
);

CREATE TABLE IF NOT EXISTS tags (
	repo            TEXT NOT NULL,
	name            TEXT NOT NULL,
	manifest_digest TEXT NOT NULL REFERENCES manifests(digest),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (repo, name)
);

CREATE TABLE IF NOT EXISTS upload_sessions (
	id               TEXT PRIMARY KEY,
	repo             TEXT NOT NULL,
	length           BIGINT NOT NULL DEFAULT 0,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_activity_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	staging_path     TEXT NOT NULL
);
`

var _ Index = (*PostgresIndex)(nil)

// PostgresIndex is an Index backed by PostgreSQL via database/sql and
// lib/pq, for production deployments that need the index to survive
// process restarts and be shared across multiple registry instances.
type PostgresIndex struct {
	db *sql.DB
}

// OpenPostgresIndex connects to dsn, applies the schema, and returns a
// ready PostgresIndex.
func OpenPostgresIndex(ctx context.Context, dsn string) (*PostgresIndex, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("metadata: open: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("metadata: ping: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("metadata: apply schema: %w", err)
	}

	return &PostgresIndex{db: db}, nil
}

func (p *PostgresIndex) Close() error { return p.db.Close() }

func (p *PostgresIndex) PutRepository(ctx context.Context, name string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO repositories (name) VALUES ($1)
		ON CONFLICT (name) DO NOTHING`, name)
	return err
}

func (p *PostgresIndex) ListRepositories(ctx context.Context, last string, n int) (Page, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT name FROM repositories WHERE name > $1 ORDER BY name LIMIT $2`,
		last, pageSize(n)+1)
	if err != nil {
		return Page{}, err
	}
	defer rows.Close()
	return scanPage(rows, n)
}

func (p *PostgresIndex) PutManifest(ctx context.Context, m Manifest) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO repositories (name) VALUES ($1)
		ON CONFLICT (name) DO NOTHING`, m.Repo); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO manifests (digest, media_type, repo) VALUES ($1, $2, $3)
		ON CONFLICT (digest) DO NOTHING`, m.Digest.String(), m.MediaType, m.Repo); err != nil {
		return err
	}

	for _, ref := range m.References {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO manifest_refs (manifest_digest, referenced_digest) VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, m.Digest.String(), ref.String()); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (p *PostgresIndex) GetManifest(ctx context.Context, dgst digestpkg.Digest) (Manifest, error) {
	var m Manifest
	var digestStr string
	err := p.db.QueryRowContext(ctx, `
		SELECT digest, media_type, repo, created_at FROM manifests WHERE digest = $1`,
		dgst.String()).Scan(&digestStr, &m.MediaType, &m.Repo, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Manifest{}, ErrNotFound
	}
	if err != nil {
		return Manifest{}, err
	}
	m.Digest = digestpkg.Digest(digestStr)

	rows, err := p.db.QueryContext(ctx, `
		SELECT referenced_digest FROM manifest_refs WHERE manifest_digest = $1`, digestStr)
	if err != nil {
		return Manifest{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return Manifest{}, err
		}
		m.References = append(m.References, digestpkg.Digest(ref))
	}

	return m, rows.Err()
}

func (p *PostgresIndex) DeleteManifest(ctx context.Context, dgst digestpkg.Digest) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tags WHERE manifest_digest = $1`, dgst.String()); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM manifests WHERE digest = $1`, dgst.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

// PutTag inserts or replaces a tag within a transaction that re-verifies
// the target manifest row exists, matching the manifest-put contract that
// tags must never outlive (or precede) their manifest.
func (p *PostgresIndex) PutTag(ctx context.Context, repo, tag string, dgst digestpkg.Digest) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM manifests WHERE digest = $1)`, dgst.String()).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrManifestUnknown{Digest: dgst}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO repositories (name) VALUES ($1)
		ON CONFLICT (name) DO NOTHING`, repo); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tags (repo, name, manifest_digest, updated_at) VALUES ($1, $2, $3, now())
		ON CONFLICT (repo, name) DO UPDATE SET manifest_digest = EXCLUDED.manifest_digest, updated_at = now()`,
		repo, tag, dgst.String()); err != nil {
		return err
	}

	return tx.Commit()
}

func (p *PostgresIndex) GetTag(ctx context.Context, repo, tag string) (digestpkg.Digest, error) {
	var dgst string
	err := p.db.QueryRowContext(ctx, `
		SELECT manifest_digest FROM tags WHERE repo = $1 AND name = $2`, repo, tag).Scan(&dgst)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return digestpkg.Digest(dgst), nil
}

func (p *PostgresIndex) DeleteTag(ctx context.Context, repo, tag string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM tags WHERE repo = $1 AND name = $2`, repo, tag)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresIndex) ListTags(ctx context.Context, repo, last string, n int) (Page, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT name FROM tags WHERE repo = $1 AND name > $2 ORDER BY name LIMIT $3`,
		repo, last, pageSize(n)+1)
	if err != nil {
		return Page{}, err
	}
	defer rows.Close()
	return scanPage(rows, n)
}

func (p *PostgresIndex) CreateUploadSession(ctx context.Context, s UploadSession) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO upload_sessions (id, repo, length, created_at, last_activity_at, staging_path)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.Repo, s.Length, timeOrNow(s.CreatedAt), timeOrNow(s.LastActivityAt), s.StagingPath)
	return err
}

func (p *PostgresIndex) TouchUploadSession(ctx context.Context, id string, length int64, at time.Time) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE upload_sessions SET length = $1, last_activity_at = $2 WHERE id = $3`, length, at, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresIndex) DeleteUploadSession(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM upload_sessions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresIndex) ExpiredUploadSessions(ctx context.Context, olderThan time.Time) ([]UploadSession, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, repo, length, created_at, last_activity_at, staging_path
		FROM upload_sessions WHERE last_activity_at < $1`, olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UploadSession
	for rows.Next() {
		var s UploadSession
		if err := rows.Scan(&s.ID, &s.Repo, &s.Length, &s.CreatedAt, &s.LastActivityAt, &s.StagingPath); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *PostgresIndex) ReachableManifestDigests(ctx context.Context) (map[digestpkg.Digest]struct{}, error) {
	// A recursive CTE walks manifest_refs starting from every tagged digest,
	// mirroring the in-memory mark phase's transitive closure.
	rows, err := p.db.QueryContext(ctx, `
		WITH RECURSIVE reachable(digest) AS (
			SELECT DISTINCT manifest_digest FROM tags
			UNION
			SELECT mr.referenced_digest
			FROM manifest_refs mr
			JOIN reachable r ON mr.manifest_digest = r.digest
			JOIN manifests m ON m.digest = mr.referenced_digest
		)
		SELECT digest FROM reachable`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[digestpkg.Digest]struct{})
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out[digestpkg.Digest(d)] = struct{}{}
	}
	return out, rows.Err()
}

func (p *PostgresIndex) AllReferencedDigests(ctx context.Context) (map[digestpkg.Digest]struct{}, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT digest FROM manifests
		UNION
		SELECT referenced_digest FROM manifest_refs`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[digestpkg.Digest]struct{})
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out[digestpkg.Digest(d)] = struct{}{}
	}
	return out, rows.Err()
}

func pageSize(n int) int {
	if n <= 0 {
		return 1 << 30
	}
	return n
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

func scanPage(rows *sql.Rows, n int) (Page, error) {
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return Page{}, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return Page{}, err
	}

	if n > 0 && len(names) > n {
		return Page{Names: names[:n], More: true}, nil
	}
	return Page{Names: names, More: false}, nil
}
