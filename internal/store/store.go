package store

// NewProject holds the caller-supplied fields for project creation.
type NewProject struct {
	Name        string
	Description string
}

// ProjectUpdate holds optional field updates; nil means leave unchanged.
type ProjectUpdate struct {
	Name        *string
	Description *string
}

// NewFile holds the caller-supplied fields for file creation.
type NewFile struct {
	Path     string
	Content  string
	FileType string
}

// NewVersion holds the caller-supplied fields for a version snapshot.
// VersionNumber is taken verbatim; the store never assigns its own.
type NewVersion struct {
	VersionNumber int
	Snapshot      string
	Description   string
}

// NewLog holds the fields for one audit entry.
type NewLog struct {
	RunID   string
	Agent   string
	Level   string
	Message string
	Context string
}

// Store is the persistence boundary for projects, files, versions, and the
// generation audit log. Two implementations exist: Memory (ephemeral
// reference semantics) and the SQLite-backed Store opened via Open.
//
// Semantics shared by all implementations:
//   - Get/Update/Delete on a missing project or file return ErrNotFound.
//   - CreateFile and CreateVersion under a missing project return ErrNotFound.
//   - CreateFile upserts on (projectID, path): an existing path keeps its ID
//     and CreatedAt, gets new content and UpdatedAt.
//   - DeleteProject cascades to the project's files and versions.
//   - Versions and logs are append-only.
type Store interface {
	CreateProject(p NewProject) (Project, error)
	ListProjects() ([]Project, error)
	GetProject(id string) (Project, error)
	UpdateProject(id string, upd ProjectUpdate) (Project, error)
	DeleteProject(id string) error

	CreateFile(projectID string, f NewFile) (ProjectFile, error)
	ListFiles(projectID string) ([]ProjectFile, error)
	GetFile(projectID, path string) (ProjectFile, error)
	UpdateFile(projectID, path, content string) (ProjectFile, error)
	DeleteFile(projectID, path string) error

	CreateVersion(projectID string, v NewVersion) (ProjectVersion, error)
	ListVersions(projectID string) ([]ProjectVersion, error)

	AddLog(l NewLog) (AILog, error)
	ListLogs(limit int) ([]AILog, error)
	ClearLogs() error

	Close() error
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*SQLite)(nil)
)
