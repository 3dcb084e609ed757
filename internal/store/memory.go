package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is the in-memory Store implementation. A single mutex guards all
// maps, so mutations on the same project are naturally serialized.
type Memory struct {
	mu       sync.Mutex
	projects map[string]Project
	files    map[string][]ProjectFile    // projectID -> files in insert order
	versions map[string][]ProjectVersion // projectID -> versions in insert order
	logs     []AILog

	now func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		projects: make(map[string]Project),
		files:    make(map[string][]ProjectFile),
		versions: make(map[string][]ProjectVersion),
		now:      time.Now,
	}
}

func (m *Memory) CreateProject(p NewProject) (Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	proj := Project{
		ID:          uuid.New().String(),
		Name:        p.Name,
		Description: p.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.projects[proj.ID] = proj
	return proj, nil
}

func (m *Memory) ListProjects() ([]Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]Project, 0, len(m.projects))
	for _, p := range m.projects {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (m *Memory) GetProject(id string) (Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.projects[id]
	if !ok {
		return Project{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) UpdateProject(id string, upd ProjectUpdate) (Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.projects[id]
	if !ok {
		return Project{}, ErrNotFound
	}
	if upd.Name != nil {
		p.Name = *upd.Name
	}
	if upd.Description != nil {
		p.Description = *upd.Description
	}
	p.UpdatedAt = m.now().UTC()
	m.projects[id] = p
	return p, nil
}

func (m *Memory) DeleteProject(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.projects[id]; !ok {
		return ErrNotFound
	}
	delete(m.projects, id)
	delete(m.files, id)
	delete(m.versions, id)
	return nil
}

func (m *Memory) CreateFile(projectID string, f NewFile) (ProjectFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.projects[projectID]; !ok {
		return ProjectFile{}, ErrNotFound
	}

	now := m.now().UTC()
	files := m.files[projectID]

	// Upsert: an existing path keeps its identity, gets fresh content.
	for i, existing := range files {
		if existing.Path == f.Path {
			existing.Content = f.Content
			existing.FileType = f.FileType
			existing.UpdatedAt = now
			files[i] = existing
			return existing, nil
		}
	}

	file := ProjectFile{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Path:      f.Path,
		Content:   f.Content,
		FileType:  f.FileType,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.files[projectID] = append(files, file)
	return file, nil
}

func (m *Memory) ListFiles(projectID string) ([]ProjectFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.projects[projectID]; !ok {
		return nil, ErrNotFound
	}
	files := make([]ProjectFile, len(m.files[projectID]))
	copy(files, m.files[projectID])
	return files, nil
}

func (m *Memory) GetFile(projectID, path string) (ProjectFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, f := range m.files[projectID] {
		if f.Path == path {
			return f, nil
		}
	}
	return ProjectFile{}, ErrNotFound
}

func (m *Memory) UpdateFile(projectID, path, content string) (ProjectFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	files := m.files[projectID]
	for i, f := range files {
		if f.Path == path {
			f.Content = content
			f.UpdatedAt = m.now().UTC()
			files[i] = f
			return f, nil
		}
	}
	return ProjectFile{}, ErrNotFound
}

func (m *Memory) DeleteFile(projectID, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	files := m.files[projectID]
	for i, f := range files {
		if f.Path == path {
			m.files[projectID] = append(files[:i], files[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) CreateVersion(projectID string, v NewVersion) (ProjectVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.projects[projectID]; !ok {
		return ProjectVersion{}, ErrNotFound
	}

	version := ProjectVersion{
		ID:            uuid.New().String(),
		ProjectID:     projectID,
		VersionNumber: v.VersionNumber,
		Snapshot:      v.Snapshot,
		Description:   v.Description,
		CreatedAt:     m.now().UTC(),
	}
	m.versions[projectID] = append(m.versions[projectID], version)
	return version, nil
}

func (m *Memory) ListVersions(projectID string) ([]ProjectVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.projects[projectID]; !ok {
		return nil, ErrNotFound
	}
	versions := make([]ProjectVersion, len(m.versions[projectID]))
	copy(versions, m.versions[projectID])
	return versions, nil
}

func (m *Memory) AddLog(l NewLog) (AILog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := AILog{
		ID:        uuid.New().String(),
		RunID:     l.RunID,
		Agent:     l.Agent,
		Level:     l.Level,
		Message:   l.Message,
		Context:   l.Context,
		CreatedAt: m.now().UTC(),
	}
	m.logs = append(m.logs, entry)
	return entry, nil
}

func (m *Memory) ListLogs(limit int) ([]AILog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	logs := m.logs
	if limit > 0 && len(logs) > limit {
		logs = logs[len(logs)-limit:]
	}
	result := make([]AILog, len(logs))
	copy(result, logs)
	return result, nil
}

func (m *Memory) ClearLogs() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logs = nil
	return nil
}

func (m *Memory) Close() error {
	return nil
}
