package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/appforge/appforge/internal/store"
)

func handleListProjects(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projects, err := deps.Store.ListProjects()
		if err != nil {
			storeError(w, err, "listing projects")
			return
		}
		writeJSON(w, http.StatusOK, projects)
	}
}

type createProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func handleCreateProject(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req createProjectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Name == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "name is required")
			return
		}

		p, err := deps.Store.CreateProject(store.NewProject{
			Name:        req.Name,
			Description: req.Description,
		})
		if err != nil {
			storeError(w, err, "creating project")
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}
}

func handleGetProject(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := deps.Store.GetProject(chi.URLParam(r, "projectID"))
		if err != nil {
			storeError(w, err, "loading project")
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

type updateProjectRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

func handleUpdateProject(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req updateProjectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		p, err := deps.Store.UpdateProject(chi.URLParam(r, "projectID"), store.ProjectUpdate{
			Name:        req.Name,
			Description: req.Description,
		})
		if err != nil {
			storeError(w, err, "updating project")
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handleDeleteProject(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Store.DeleteProject(chi.URLParam(r, "projectID")); err != nil {
			storeError(w, err, "deleting project")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleListFiles(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		files, err := deps.Store.ListFiles(chi.URLParam(r, "projectID"))
		if err != nil {
			storeError(w, err, "listing files")
			return
		}
		writeJSON(w, http.StatusOK, files)
	}
}

type createFileRequest struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	FileType string `json:"fileType"`
}

func handleCreateFile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req createFileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if err := validateFilePath(req.Path); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		f, err := deps.Store.CreateFile(chi.URLParam(r, "projectID"), store.NewFile{
			Path:     req.Path,
			Content:  req.Content,
			FileType: req.FileType,
		})
		if err != nil {
			storeError(w, err, "creating file")
			return
		}
		writeJSON(w, http.StatusCreated, f)
	}
}

func handleGetFile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := deps.Store.GetFile(chi.URLParam(r, "projectID"), chi.URLParam(r, "*"))
		if err != nil {
			storeError(w, err, "loading file")
			return
		}
		writeJSON(w, http.StatusOK, f)
	}
}

type updateFileRequest struct {
	Content string `json:"content"`
}

func handleUpdateFile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req updateFileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		f, err := deps.Store.UpdateFile(chi.URLParam(r, "projectID"), chi.URLParam(r, "*"), req.Content)
		if err != nil {
			storeError(w, err, "updating file")
			return
		}
		writeJSON(w, http.StatusOK, f)
	}
}

func handleDeleteFile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Store.DeleteFile(chi.URLParam(r, "projectID"), chi.URLParam(r, "*")); err != nil {
			storeError(w, err, "deleting file")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleListVersions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		versions, err := deps.Store.ListVersions(chi.URLParam(r, "projectID"))
		if err != nil {
			storeError(w, err, "listing versions")
			return
		}
		writeJSON(w, http.StatusOK, versions)
	}
}

type createVersionRequest struct {
	VersionNumber int    `json:"versionNumber"`
	Snapshot      string `json:"snapshot"`
	Description   string `json:"description,omitempty"`
}

func handleCreateVersion(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req createVersionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.VersionNumber < 1 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "versionNumber must be positive")
			return
		}

		v, err := deps.Store.CreateVersion(chi.URLParam(r, "projectID"), store.NewVersion{
			VersionNumber: req.VersionNumber,
			Snapshot:      req.Snapshot,
			Description:   req.Description,
		})
		if err != nil {
			storeError(w, err, "creating version")
			return
		}
		writeJSON(w, http.StatusCreated, v)
	}
}
