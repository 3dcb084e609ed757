package store

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Log levels for AILog entries.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// File types for generated ProjectFile entries.
const (
	FileTypePage   = "page"
	FileTypeAPI    = "api"
	FileTypeSchema = "schema"
)

// Project is the root entity: it owns its files and versions exclusively.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ProjectFile is one generated source file, keyed by (projectID, path).
type ProjectFile struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	Path      string    `json:"path"`
	Content   string    `json:"content"`
	FileType  string    `json:"fileType"` // "page", "api", "schema"
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ProjectVersion is an immutable snapshot of a project's file set.
// Versions are append-only: once created they are never modified.
type ProjectVersion struct {
	ID            string    `json:"id"`
	ProjectID     string    `json:"projectId"`
	VersionNumber int       `json:"versionNumber"`
	Snapshot      string    `json:"snapshot"`
	Description   string    `json:"description,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// AILog is one append-only audit entry from a generation run. RunID ties
// entries from the same run together so concurrent runs do not interleave.
type AILog struct {
	ID        string    `json:"id"`
	RunID     string    `json:"runId,omitempty"`
	Agent     string    `json:"agent"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Context   string    `json:"context,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Snapshot is the decoded form of ProjectVersion.Snapshot.
type Snapshot struct {
	Files       []SnapshotFile `json:"files"`
	GeneratedAt time.Time      `json:"generatedAt"`
}

// SnapshotFile captures one file inside a snapshot.
type SnapshotFile struct {
	ID       string `json:"id"`
	Path     string `json:"path"`
	Content  string `json:"content"`
	FileType string `json:"fileType"`
}

// EncodeSnapshot serializes a file set and timestamp into the snapshot text
// stored on a ProjectVersion.
func EncodeSnapshot(files []ProjectFile, generatedAt time.Time) (string, error) {
	snap := Snapshot{GeneratedAt: generatedAt.UTC()}
	for _, f := range files {
		snap.Files = append(snap.Files, SnapshotFile{
			ID:       f.ID,
			Path:     f.Path,
			Content:  f.Content,
			FileType: f.FileType,
		})
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeSnapshot parses the snapshot text of a ProjectVersion.
func DecodeSnapshot(raw string) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
