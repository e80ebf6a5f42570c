package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/cspgen/internal/csp"
	"github.com/nao1215/cspgen/internal/model"
)

// FileName is the database file created inside the database directory.
const FileName = "cspgen.db"

// timeFormat is fixed width so that stored timestamps sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// ErrRunNotFound is returned when no run exists with the requested ID.
var ErrRunNotFound = errors.New("run not found")

// HistoryDB provides SQLite-based storage of past cspgen runs.
//
// Design decision: We use a single database file for all sites rather than
// one file per site. Listing runs across sites is then one query, and the
// file is easy to back up.
type HistoryDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures HistoryDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a HistoryDB in the specified directory.
// If CreateIfNotExists is true, the directory and database file are created.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*HistoryDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (run with --save first)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// modernc.org/sqlite: mode=rw refuses to create a missing file.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}
	// Concurrent readers wait for the writer instead of failing with SQLITE_BUSY.
	dsn += "&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	hdb := &HistoryDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := hdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return hdb, nil
}

// Path returns the database file path.
func (hdb *HistoryDB) Path() string {
	return hdb.dbPath
}

// Close closes the database connection.
func (hdb *HistoryDB) Close() error {
	return hdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (hdb *HistoryDB) createTables() error {
	schema := `
	-- One row per cspgen run
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		start_url TEXT NOT NULL,
		origin_host TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		max_pages INTEGER NOT NULL,
		pages_attempted INTEGER NOT NULL,
		pages_succeeded INTEGER NOT NULL,
		skipped_references INTEGER NOT NULL DEFAULT 0,
		interrupted INTEGER NOT NULL DEFAULT 0,
		header TEXT NOT NULL,
		policy_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_origin ON runs(origin_host);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	-- Every fetch attempt of a run, in crawl order
	CREATE TABLE IF NOT EXISTS run_pages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		depth INTEGER NOT NULL,
		status TEXT NOT NULL,
		status_code INTEGER,
		refs INTEGER NOT NULL DEFAULT 0,
		links INTEGER NOT NULL DEFAULT 0,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_pages_run ON run_pages(run_id);

	-- Evidence behind every policy token of a run
	CREATE TABLE IF NOT EXISTS run_sources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		directive TEXT NOT NULL,
		token TEXT NOT NULL,
		count INTEGER NOT NULL,
		first_page TEXT,
		first_resource TEXT,
		UNIQUE(run_id, directive, token)
	);

	CREATE INDEX IF NOT EXISTS idx_sources_run ON run_sources(run_id);
	CREATE INDEX IF NOT EXISTS idx_sources_token ON run_sources(token);
	`

	_, err := hdb.db.ExecContext(context.Background(), schema)
	return err
}

// Run contains summary information about a stored run.
// This is used for displaying history without loading every page.
type Run struct {
	// ID is the unique identifier of the run in the database.
	ID int64

	// StartURL is the crawl start URL.
	StartURL string

	// OriginHost is the host treated as 'self'.
	OriginHost string

	// StartedAt is when the crawl began.
	StartedAt time.Time

	// FinishedAt is when the crawl ended.
	FinishedAt time.Time

	// MaxPages is the page budget of the run.
	MaxPages int

	// PagesAttempted is the number of fetch attempts.
	PagesAttempted int

	// PagesSucceeded is the number of pages fetched and parsed.
	PagesSucceeded int

	// SkippedReferences counts unusable references.
	SkippedReferences int

	// Interrupted is true when the crawl was cancelled.
	Interrupted bool

	// Header is the rendered Content-Security-Policy value.
	Header string

	// Policy is the stored policy, frozen.
	Policy *model.Policy
}

// SaveSession stores a finished session and returns the new run ID.
// The run, its pages and its evidence are written in one transaction.
func (hdb *HistoryDB) SaveSession(ctx context.Context, session *model.Session) (int64, error) {
	policyJSON, err := json.Marshal(session.Policy)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize policy: %w", err)
	}

	tx, err := hdb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	res, err := tx.ExecContext(ctx, `
	INSERT INTO runs (start_url, origin_host, started_at, finished_at, max_pages,
		pages_attempted, pages_succeeded, skipped_references, interrupted, header, policy_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		session.StartURL,
		session.OriginHost,
		session.StartedAt.UTC().Format(timeFormat),
		session.FinishedAt.UTC().Format(timeFormat),
		session.MaxPages,
		session.PagesAttempted(),
		session.PagesSucceeded(),
		session.SkippedReferences,
		session.Interrupted,
		csp.RenderHeader(session.Policy),
		string(policyJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get run id: %w", err)
	}

	for _, p := range session.Pages {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO run_pages (run_id, url, depth, status, status_code, refs, links, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, runID, p.URL, p.Depth, string(p.Status), p.StatusCode, p.References, p.Links, p.Error)
		if err != nil {
			return 0, fmt.Errorf("failed to save page %s: %w", p.URL, err)
		}
	}

	for _, e := range session.Evidence {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO run_sources (run_id, directive, token, count, first_page, first_resource)
		VALUES (?, ?, ?, ?, ?, ?)
		`, runID, string(e.Directive), e.Token, e.Count, e.FirstPage, e.FirstResource)
		if err != nil {
			return 0, fmt.Errorf("failed to save source %s: %w", e.Token, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}
	return runID, nil
}

// runColumns is the column list scanned by scanRun.
const runColumns = `id, start_url, origin_host, started_at, finished_at, max_pages,
	pages_attempted, pages_succeeded, skipped_references, interrupted, header, policy_json`

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRun reads one runs row.
func scanRun(row rowScanner) (*Run, error) {
	var (
		run                   Run
		startedAt, finishedAt string
		policyJSON            string
	)
	if err := row.Scan(
		&run.ID, &run.StartURL, &run.OriginHost, &startedAt, &finishedAt, &run.MaxPages,
		&run.PagesAttempted, &run.PagesSucceeded, &run.SkippedReferences, &run.Interrupted,
		&run.Header, &policyJSON,
	); err != nil {
		return nil, err
	}

	run.StartedAt = parseTimestamp(startedAt)
	run.FinishedAt = parseTimestamp(finishedAt)

	run.Policy = model.NewPolicy()
	if err := json.Unmarshal([]byte(policyJSON), run.Policy); err != nil {
		return nil, fmt.Errorf("failed to parse policy of run %d: %w", run.ID, err)
	}
	run.Policy.Freeze()

	return &run, nil
}

// ListRuns returns stored runs, newest first.
// When originHost is non-empty only runs for that host are returned.
func (hdb *HistoryDB) ListRuns(ctx context.Context, originHost string) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	args := []any{}
	if originHost != "" {
		query += ` WHERE origin_host = ?`
		args = append(args, originHost)
	}
	query += ` ORDER BY started_at DESC, id DESC`

	rows, err := hdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// GetRun retrieves a run by its database ID.
// It returns ErrRunNotFound if no such run exists.
func (hdb *HistoryDB) GetRun(ctx context.Context, id int64) (*Run, error) {
	row := hdb.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// RunPages returns the fetch attempts of a run in crawl order.
func (hdb *HistoryDB) RunPages(ctx context.Context, runID int64) ([]model.PageResult, error) {
	rows, err := hdb.db.QueryContext(ctx, `
	SELECT url, depth, status, status_code, refs, links, error
	FROM run_pages
	WHERE run_id = ?
	ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get pages: %w", err)
	}
	defer rows.Close()

	pages := make([]model.PageResult, 0)
	for rows.Next() {
		var (
			p          model.PageResult
			status     string
			statusCode sql.NullInt64
			errText    sql.NullString
		)
		if err := rows.Scan(&p.URL, &p.Depth, &status, &statusCode, &p.References, &p.Links, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		p.Status = model.PageStatus(status)
		p.StatusCode = int(statusCode.Int64)
		p.Error = errText.String
		pages = append(pages, p)
	}

	return pages, rows.Err()
}

// RunSources returns the evidence of a run in insertion order.
func (hdb *HistoryDB) RunSources(ctx context.Context, runID int64) ([]model.OriginEvidence, error) {
	rows, err := hdb.db.QueryContext(ctx, `
	SELECT directive, token, count, first_page, first_resource
	FROM run_sources
	WHERE run_id = ?
	ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get sources: %w", err)
	}
	defer rows.Close()

	sources := make([]model.OriginEvidence, 0)
	for rows.Next() {
		var (
			e                        model.OriginEvidence
			directive                string
			firstPage, firstResource sql.NullString
		)
		if err := rows.Scan(&directive, &e.Token, &e.Count, &firstPage, &firstResource); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		e.Directive = model.Directive(directive)
		e.FirstPage = firstPage.String
		e.FirstResource = firstResource.String
		sources = append(sources, e)
	}

	return sources, rows.Err()
}

// LoadSession rebuilds the session of a stored run, including its pages
// and evidence, so that reports can be rendered again.
func (hdb *HistoryDB) LoadSession(ctx context.Context, runID int64) (*model.Session, error) {
	run, err := hdb.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	pages, err := hdb.RunPages(ctx, runID)
	if err != nil {
		return nil, err
	}
	sources, err := hdb.RunSources(ctx, runID)
	if err != nil {
		return nil, err
	}

	session := model.NewSession(run.StartURL, run.MaxPages)
	session.OriginHost = run.OriginHost
	session.StartedAt = run.StartedAt
	session.FinishedAt = run.FinishedAt
	session.SkippedReferences = run.SkippedReferences
	session.Interrupted = run.Interrupted
	session.Policy = run.Policy
	session.Pages = pages
	session.Evidence = sources
	return session, nil
}

// timestampFormats contains the timestamp formats that may be stored.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05", // SQLite default datetime format
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
