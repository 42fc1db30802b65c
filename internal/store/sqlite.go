package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/brand-discovery/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It is the
// development and test backend; Postgres serves production.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS brands (
	id             TEXT PRIMARY KEY,
	primary_domain TEXT NOT NULL,
	name           TEXT NOT NULL DEFAULT '',
	description    TEXT NOT NULL DEFAULT '',
	logo_url       TEXT NOT NULL DEFAULT '',
	slug           TEXT NOT NULL DEFAULT '',
	metadata       TEXT NOT NULL DEFAULT '{}',
	crawl_status   TEXT NOT NULL DEFAULT 'extracting',
	is_public      INTEGER NOT NULL DEFAULT 1,
	owner_id       TEXT,
	created_at     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_brands_public_domain
	ON brands(primary_domain) WHERE is_public AND owner_id IS NULL;
CREATE INDEX IF NOT EXISTS idx_brands_crawl_status ON brands(crawl_status, created_at);

CREATE TABLE IF NOT EXISTS url_mappings (
	id                  TEXT PRIMARY KEY,
	brand_id            TEXT NOT NULL REFERENCES brands(id),
	domain              TEXT NOT NULL,
	status              TEXT NOT NULL DEFAULT 'processing',
	progress_percentage INTEGER NOT NULL DEFAULT 0,
	current_step        TEXT NOT NULL DEFAULT '',
	company_count       INTEGER NOT NULL DEFAULT 0,
	blog_count          INTEGER NOT NULL DEFAULT 0,
	docs_count          INTEGER NOT NULL DEFAULT 0,
	ecommerce_count     INTEGER NOT NULL DEFAULT 0,
	other_count         INTEGER NOT NULL DEFAULT 0,
	error_message       TEXT,
	started_at          DATETIME NOT NULL,
	completed_at        DATETIME,
	UNIQUE (brand_id, domain)
);

CREATE INDEX IF NOT EXISTS idx_url_mappings_brand_id ON url_mappings(brand_id);

CREATE TABLE IF NOT EXISTS brand_urls (
	id            TEXT PRIMARY KEY,
	brand_id      TEXT NOT NULL REFERENCES brands(id),
	mapping_id    TEXT NOT NULL,
	url           TEXT NOT NULL,
	title         TEXT NOT NULL DEFAULT '',
	description   TEXT NOT NULL DEFAULT '',
	category      TEXT NOT NULL DEFAULT 'other',
	priority      INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL DEFAULT 'discovered',
	r2_key        TEXT NOT NULL DEFAULT '',
	content_size  INTEGER NOT NULL DEFAULT 0,
	error_message TEXT,
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL,
	UNIQUE (brand_id, url)
);

CREATE INDEX IF NOT EXISTS idx_brand_urls_brand_status ON brand_urls(brand_id, status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

// placeholders returns "?, ?, ..." for n parameters.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBrandSQLite(row rowScanner) (*model.Brand, error) {
	var b model.Brand
	var metadataJSON string
	err := row.Scan(
		&b.ID, &b.PrimaryDomain, &b.Name, &b.Description, &b.LogoURL, &b.Slug,
		&metadataJSON, &b.CrawlStatus, &b.IsPublic, &b.OwnerID, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &b.Metadata); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal brand metadata")
		}
	}
	return &b, nil
}

func (s *SQLiteStore) CreateBrand(ctx context.Context, b *model.Brand) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now
	if b.Metadata == nil {
		b.Metadata = map[string]any{}
	}

	metadataJSON, err := json.Marshal(b.Metadata)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal brand metadata")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO brands (id, primary_domain, name, description, logo_url, slug, metadata, crawl_status, is_public, owner_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.PrimaryDomain, b.Name, b.Description, b.LogoURL, b.Slug,
		string(metadataJSON), string(b.CrawlStatus), b.IsPublic, b.OwnerID, now, now,
	)
	return eris.Wrap(err, "sqlite: insert brand")
}

const brandColumnsSQLite = `id, primary_domain, name, description, logo_url, slug, metadata, crawl_status, is_public, owner_id, created_at, updated_at`

func (s *SQLiteStore) GetBrand(ctx context.Context, id string) (*model.Brand, error) {
	b, err := scanBrandSQLite(s.db.QueryRowContext(ctx,
		`SELECT `+brandColumnsSQLite+` FROM brands WHERE id = ?`, id,
	))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get brand %s", id)
	}
	return b, nil
}

func (s *SQLiteStore) FindPublicBrand(ctx context.Context, domain string) (*model.Brand, error) {
	b, err := scanBrandSQLite(s.db.QueryRowContext(ctx,
		`SELECT `+brandColumnsSQLite+` FROM brands WHERE primary_domain = ? AND is_public AND owner_id IS NULL`,
		domain,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find public brand %s", domain)
	}
	return b, nil
}

func (s *SQLiteStore) UpdateBrandFields(ctx context.Context, b *model.Brand) error {
	metadataJSON, err := json.Marshal(b.Metadata)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal brand metadata")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE brands SET name = ?, description = ?, logo_url = ?, slug = ?, metadata = ?, updated_at = ? WHERE id = ?`,
		b.Name, b.Description, b.LogoURL, b.Slug, string(metadataJSON), time.Now().UTC(), b.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update brand %s", b.ID)
	}
	return checkRowsAffected(res, "brand", b.ID)
}

func (s *SQLiteStore) AdvanceBrandStatus(ctx context.Context, id string, from, to model.CrawlStatus) (bool, error) {
	if !from.CanTransition(to) {
		return false, eris.Errorf("sqlite: invalid crawl status transition %s -> %s", from, to)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE brands SET crawl_status = ?, updated_at = ? WHERE id = ? AND crawl_status = ?`,
		string(to), time.Now().UTC(), id, string(from),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: advance brand status %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListBrandsByStatus(ctx context.Context, status model.CrawlStatus, limit int) ([]model.Brand, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+brandColumnsSQLite+` FROM brands WHERE crawl_status = ? ORDER BY created_at ASC LIMIT ?`,
		string(status), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list brands by status")
	}
	defer rows.Close()

	var brands []model.Brand
	for rows.Next() {
		b, err := scanBrandSQLite(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan brand")
		}
		brands = append(brands, *b)
	}
	return brands, eris.Wrap(rows.Err(), "sqlite: list brands by status")
}

const mappingColumnsSQLite = `id, brand_id, domain, status, progress_percentage, current_step, company_count, blog_count, docs_count, ecommerce_count, other_count, error_message, started_at, completed_at`

func scanMappingSQLite(row rowScanner) (*model.Mapping, error) {
	var m model.Mapping
	var errMsg *string
	err := row.Scan(
		&m.ID, &m.BrandID, &m.Domain, &m.Status, &m.Progress, &m.CurrentStep,
		&m.Counts.Company, &m.Counts.Blog, &m.Counts.Docs, &m.Counts.Ecommerce, &m.Counts.Other,
		&errMsg, &m.StartedAt, &m.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if errMsg != nil {
		m.ErrorMessage = *errMsg
	}
	return &m, nil
}

func (s *SQLiteStore) UpsertMapping(ctx context.Context, m *model.Mapping) (*model.Mapping, error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	m.StartedAt = now

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO url_mappings (id, brand_id, domain, status, progress_percentage, current_step, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (brand_id, domain) DO UPDATE SET
			status = excluded.status,
			progress_percentage = excluded.progress_percentage,
			current_step = excluded.current_step,
			error_message = NULL,
			started_at = excluded.started_at,
			completed_at = NULL
		 RETURNING id`,
		m.ID, m.BrandID, m.Domain, string(m.Status), m.Progress, m.CurrentStep, now,
	).Scan(&m.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: upsert mapping %s/%s", m.BrandID, m.Domain)
	}
	return m, nil
}

func (s *SQLiteStore) GetMapping(ctx context.Context, brandID, domain string) (*model.Mapping, error) {
	m, err := scanMappingSQLite(s.db.QueryRowContext(ctx,
		`SELECT `+mappingColumnsSQLite+` FROM url_mappings WHERE brand_id = ? AND domain = ?`,
		brandID, domain,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get mapping %s/%s", brandID, domain)
	}
	return m, nil
}

func (s *SQLiteStore) UpdateMappingProgress(ctx context.Context, id string, status model.MappingStatus, progress int, step string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE url_mappings SET status = ?, progress_percentage = MAX(progress_percentage, ?), current_step = ? WHERE id = ?`,
		string(status), progress, step, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update mapping progress %s", id)
	}
	return checkRowsAffected(res, "mapping", id)
}

func (s *SQLiteStore) SetMappingCounts(ctx context.Context, id string, counts model.CategoryCounts) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE url_mappings SET company_count = ?, blog_count = ?, docs_count = ?, ecommerce_count = ?, other_count = ? WHERE id = ?`,
		counts.Company, counts.Blog, counts.Docs, counts.Ecommerce, counts.Other, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set mapping counts %s", id)
	}
	return checkRowsAffected(res, "mapping", id)
}

func (s *SQLiteStore) CompleteMapping(ctx context.Context, id, step string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE url_mappings SET status = ?, progress_percentage = 100, current_step = ?, completed_at = ? WHERE id = ?`,
		string(model.MappingStatusCompleted), step, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete mapping %s", id)
	}
	return checkRowsAffected(res, "mapping", id)
}

func (s *SQLiteStore) FailMapping(ctx context.Context, id, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE url_mappings SET status = ?, error_message = ?, completed_at = ? WHERE id = ?`,
		string(model.MappingStatusFailed), errMsg, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail mapping %s", id)
	}
	return checkRowsAffected(res, "mapping", id)
}

func (s *SQLiteStore) UpsertBrandURLs(ctx context.Context, urls []model.BrandURL) (int64, error) {
	if len(urls) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert brand urls: begin tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO brand_urls (id, brand_id, mapping_id, url, title, description, category, priority, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (brand_id, url) DO UPDATE SET
			mapping_id = excluded.mapping_id,
			title = excluded.title,
			description = excluded.description,
			category = excluded.category,
			priority = excluded.priority,
			updated_at = excluded.updated_at`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert brand urls: prepare")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	var total int64
	for _, u := range urls {
		id := u.ID
		if id == "" {
			id = uuid.New().String()
		}
		status := u.Status
		if status == "" {
			status = model.URLStatusDiscovered
		}
		res, err := stmt.ExecContext(ctx,
			id, u.BrandID, u.MappingID, u.URL, u.Title, u.Description,
			string(u.Category), u.Priority, string(status), now, now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert brand url %s", u.URL)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert brand urls: commit")
	}
	return total, nil
}

func (s *SQLiteStore) GetBrandURL(ctx context.Context, brandID, url string) (*model.BrandURL, error) {
	var u model.BrandURL
	var errMsg *string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, brand_id, mapping_id, url, title, description, category, priority, status, r2_key, content_size, error_message, created_at, updated_at
		 FROM brand_urls WHERE brand_id = ? AND url = ?`,
		brandID, url,
	).Scan(
		&u.ID, &u.BrandID, &u.MappingID, &u.URL, &u.Title, &u.Description,
		&u.Category, &u.Priority, &u.Status, &u.R2Key, &u.ContentSize,
		&errMsg, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get brand url %s", url)
	}
	if errMsg != nil {
		u.ErrorMessage = *errMsg
	}
	return &u, nil
}

// transitionURL applies a guarded status update. Extra SET clauses come first
// in setSQL and their values in setArgs.
func (s *SQLiteStore) transitionURL(ctx context.Context, brandID, url string, next model.URLStatus, setSQL string, setArgs []any) (bool, error) {
	allowed := allowedInto(next)
	query := `UPDATE brand_urls SET status = ?` + setSQL + `, updated_at = ? WHERE brand_id = ? AND url = ? AND status IN (` + placeholders(len(allowed)) + `)`

	args := []any{string(next)}
	args = append(args, setArgs...)
	args = append(args, time.Now().UTC(), brandID, url)
	for _, a := range allowed {
		args = append(args, a)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: transition url %s to %s", url, next)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) MarkURLScraped(ctx context.Context, brandID, url string, contentSize int) (bool, error) {
	return s.transitionURL(ctx, brandID, url, model.URLStatusScraped, `, content_size = ?`, []any{contentSize})
}

func (s *SQLiteStore) MarkURLUploading(ctx context.Context, brandID, url string) (bool, error) {
	return s.transitionURL(ctx, brandID, url, model.URLStatusUploading, ``, nil)
}

func (s *SQLiteStore) MarkURLUploaded(ctx context.Context, brandID, url, r2Key string, size int) (bool, error) {
	return s.transitionURL(ctx, brandID, url, model.URLStatusUploaded, `, r2_key = ?, content_size = ?`, []any{r2Key, size})
}

func (s *SQLiteStore) MarkURLFailed(ctx context.Context, brandID, url, errMsg string) (bool, error) {
	return s.transitionURL(ctx, brandID, url, model.URLStatusFailed, `, error_message = ?`, []any{errMsg})
}

func (s *SQLiteStore) FailPendingURLs(ctx context.Context, brandID, errMsg string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE brand_urls SET status = ?, error_message = ?, updated_at = ? WHERE brand_id = ? AND status IN (?, ?)`,
		string(model.URLStatusFailed), errMsg, time.Now().UTC(), brandID,
		string(model.URLStatusDiscovered), string(model.URLStatusScraping),
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: fail pending urls for brand %s", brandID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return n, nil
}

func (s *SQLiteStore) CountURLStatuses(ctx context.Context, brandID string) (map[model.URLStatus]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM brand_urls WHERE brand_id = ? GROUP BY status`,
		brandID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: count url statuses for brand %s", brandID)
	}
	defer rows.Close()

	counts := make(map[model.URLStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan url status count")
		}
		counts[model.URLStatus(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: count url statuses")
}
