package store

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLite is the durable Store implementation. The connection pool is capped
// at one connection, which both avoids "database is locked" errors and
// serializes mutations across concurrent requests.
type SQLite struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used by
// tests).
func Open(dataDir string) (*SQLite, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "appforge.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *SQLite) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			return fmt.Errorf("parsing migration version from %q: %w", entry.Name(), err)
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *SQLite) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", raw, err)
	}
	return t, nil
}

func (s *SQLite) projectExists(projectID string) (bool, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM projects WHERE id = ?", projectID).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// --- Projects ---

func (s *SQLite) CreateProject(p NewProject) (Project, error) {
	now := nowRFC3339()
	proj := Project{
		ID:          uuid.New().String(),
		Name:        p.Name,
		Description: p.Description,
	}
	_, err := s.db.Exec(`
		INSERT INTO projects (id, name, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		proj.ID, proj.Name, proj.Description, now, now,
	)
	if err != nil {
		return Project{}, err
	}
	proj.CreatedAt, _ = parseTime(now)
	proj.UpdatedAt = proj.CreatedAt
	return proj, nil
}

func (s *SQLite) ListProjects() ([]Project, error) {
	rows, err := s.db.Query(`
		SELECT id, name, description, created_at, updated_at
		FROM projects ORDER BY created_at ASC, rowid ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (Project, error) {
	var p Project
	var createdAt, updatedAt string
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &createdAt, &updatedAt); err != nil {
		return Project{}, err
	}
	var err error
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return Project{}, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Project{}, err
	}
	return p, nil
}

func (s *SQLite) GetProject(id string) (Project, error) {
	row := s.db.QueryRow(`
		SELECT id, name, description, created_at, updated_at
		FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return Project{}, ErrNotFound
	}
	return p, err
}

func (s *SQLite) UpdateProject(id string, upd ProjectUpdate) (Project, error) {
	p, err := s.GetProject(id)
	if err != nil {
		return Project{}, err
	}
	if upd.Name != nil {
		p.Name = *upd.Name
	}
	if upd.Description != nil {
		p.Description = *upd.Description
	}
	now := nowRFC3339()
	if _, err := s.db.Exec(`UPDATE projects SET name = ?, description = ?, updated_at = ? WHERE id = ?`,
		p.Name, p.Description, now, id); err != nil {
		return Project{}, err
	}
	p.UpdatedAt, _ = parseTime(now)
	return p, nil
}

func (s *SQLite) DeleteProject(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec("DELETE FROM projects WHERE id = ?", id)
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

	// Cascade: the project owns its files and versions exclusively.
	if _, err := tx.Exec("DELETE FROM project_files WHERE project_id = ?", id); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM project_versions WHERE project_id = ?", id); err != nil {
		return err
	}

	return tx.Commit()
}

// --- Files ---

func (s *SQLite) CreateFile(projectID string, f NewFile) (ProjectFile, error) {
	ok, err := s.projectExists(projectID)
	if err != nil {
		return ProjectFile{}, err
	}
	if !ok {
		return ProjectFile{}, ErrNotFound
	}

	// Upsert on (project_id, path): an existing file keeps its id and
	// created_at, gets new content and updated_at.
	now := nowRFC3339()
	_, err = s.db.Exec(`
		INSERT INTO project_files (id, project_id, path, content, file_type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, path) DO UPDATE SET
			content = excluded.content,
			file_type = excluded.file_type,
			updated_at = excluded.updated_at`,
		uuid.New().String(), projectID, f.Path, f.Content, f.FileType, now, now,
	)
	if err != nil {
		return ProjectFile{}, err
	}
	return s.GetFile(projectID, f.Path)
}

func (s *SQLite) ListFiles(projectID string) ([]ProjectFile, error) {
	ok, err := s.projectExists(projectID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}

	rows, err := s.db.Query(`
		SELECT id, project_id, path, content, file_type, created_at, updated_at
		FROM project_files WHERE project_id = ? ORDER BY rowid ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ProjectFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

func scanFile(row rowScanner) (ProjectFile, error) {
	var f ProjectFile
	var createdAt, updatedAt string
	if err := row.Scan(&f.ID, &f.ProjectID, &f.Path, &f.Content, &f.FileType, &createdAt, &updatedAt); err != nil {
		return ProjectFile{}, err
	}
	var err error
	if f.CreatedAt, err = parseTime(createdAt); err != nil {
		return ProjectFile{}, err
	}
	if f.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return ProjectFile{}, err
	}
	return f, nil
}

func (s *SQLite) GetFile(projectID, path string) (ProjectFile, error) {
	row := s.db.QueryRow(`
		SELECT id, project_id, path, content, file_type, created_at, updated_at
		FROM project_files WHERE project_id = ? AND path = ?`, projectID, path)
	f, err := scanFile(row)
	if err == sql.ErrNoRows {
		return ProjectFile{}, ErrNotFound
	}
	return f, err
}

func (s *SQLite) UpdateFile(projectID, path, content string) (ProjectFile, error) {
	now := nowRFC3339()
	res, err := s.db.Exec(`
		UPDATE project_files SET content = ?, updated_at = ?
		WHERE project_id = ? AND path = ?`,
		content, now, projectID, path)
	if err != nil {
		return ProjectFile{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return ProjectFile{}, err
	}
	if n == 0 {
		return ProjectFile{}, ErrNotFound
	}
	return s.GetFile(projectID, path)
}

func (s *SQLite) DeleteFile(projectID, path string) error {
	res, err := s.db.Exec(`DELETE FROM project_files WHERE project_id = ? AND path = ?`, projectID, path)
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

// --- Versions ---

func (s *SQLite) CreateVersion(projectID string, v NewVersion) (ProjectVersion, error) {
	ok, err := s.projectExists(projectID)
	if err != nil {
		return ProjectVersion{}, err
	}
	if !ok {
		return ProjectVersion{}, ErrNotFound
	}

	now := nowRFC3339()
	version := ProjectVersion{
		ID:            uuid.New().String(),
		ProjectID:     projectID,
		VersionNumber: v.VersionNumber,
		Snapshot:      v.Snapshot,
		Description:   v.Description,
	}
	_, err = s.db.Exec(`
		INSERT INTO project_versions (id, project_id, version_number, snapshot, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		version.ID, projectID, v.VersionNumber, v.Snapshot, v.Description, now,
	)
	if err != nil {
		return ProjectVersion{}, err
	}
	version.CreatedAt, _ = parseTime(now)
	return version, nil
}

func (s *SQLite) ListVersions(projectID string) ([]ProjectVersion, error) {
	ok, err := s.projectExists(projectID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}

	rows, err := s.db.Query(`
		SELECT id, project_id, version_number, snapshot, description, created_at
		FROM project_versions WHERE project_id = ? ORDER BY rowid ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ProjectVersion
	for rows.Next() {
		var v ProjectVersion
		var createdAt string
		if err := rows.Scan(&v.ID, &v.ProjectID, &v.VersionNumber, &v.Snapshot, &v.Description, &createdAt); err != nil {
			return nil, err
		}
		if v.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

// --- Logs ---

func (s *SQLite) AddLog(l NewLog) (AILog, error) {
	now := nowRFC3339()
	entry := AILog{
		ID:      uuid.New().String(),
		RunID:   l.RunID,
		Agent:   l.Agent,
		Level:   l.Level,
		Message: l.Message,
		Context: l.Context,
	}
	_, err := s.db.Exec(`
		INSERT INTO ai_logs (id, run_id, agent, level, message, context, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.RunID, entry.Agent, entry.Level, entry.Message, entry.Context, now,
	)
	if err != nil {
		return AILog{}, err
	}
	entry.CreatedAt, _ = parseTime(now)
	return entry, nil
}

func (s *SQLite) ListLogs(limit int) ([]AILog, error) {
	query := `SELECT id, run_id, agent, level, message, context, created_at FROM ai_logs ORDER BY rowid ASC`
	var args []any
	if limit > 0 {
		query = `SELECT id, run_id, agent, level, message, context, created_at FROM (
			SELECT rowid AS rid, id, run_id, agent, level, message, context, created_at
			FROM ai_logs ORDER BY rowid DESC LIMIT ?
		) ORDER BY rid ASC`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AILog
	for rows.Next() {
		var l AILog
		var createdAt string
		if err := rows.Scan(&l.ID, &l.RunID, &l.Agent, &l.Level, &l.Message, &l.Context, &createdAt); err != nil {
			return nil, err
		}
		if l.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

func (s *SQLite) ClearLogs() error {
	_, err := s.db.Exec("DELETE FROM ai_logs")
	return err
}
