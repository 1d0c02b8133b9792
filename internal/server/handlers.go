package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/metabib/pdf-markup/internal/config"
	"github.com/metabib/pdf-markup/internal/extract"
	"github.com/metabib/pdf-markup/internal/markup"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"name":    s.cfg.ServerName,
		"version": s.cfg.Version,
	})
}

func (s *Server) handleFields(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"fields":  s.registry.All(),
	})
}

func (s *Server) handlePDFFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.docs.List(r.URL.Query().Get("query"))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"files":       files,
		"total_count": len(files),
	})
}

func (s *Server) handlePDFInfo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PDFFile string `json:"pdf_file"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}

	info, err := s.docs.Info(req.PDFFile)
	if err != nil {
		s.respondError(w, statusForDocError(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"info":    info,
	})
}

func (s *Server) handleServePDF(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")
	path, err := s.docs.Resolve(name)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.docs.Validate(path); err != nil {
		s.respondError(w, statusForDocError(err), err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	http.ServeFile(w, r, path)
}

func (s *Server) handleExtractText(w http.ResponseWriter, r *http.Request) {
	var req extract.Request
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.PDFFile == "" {
		s.respondError(w, http.StatusBadRequest, "pdf_file is required")
		return
	}
	if len(req.Selections) == 0 {
		s.respondError(w, http.StatusBadRequest, "selections are required")
		return
	}

	path, err := s.docs.Resolve(req.PDFFile)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.docs.Validate(path); err != nil {
		s.respondError(w, statusForDocError(err), err.Error())
		return
	}
	req.PDFFile = path

	resp, err := s.extractor.Extract(r.Context(), req)
	if err != nil {
		s.respondError(w, http.StatusBadGateway, fmt.Sprintf("extraction failed: %v", err))
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSaveCoordinates(w http.ResponseWriter, r *http.Request) {
	var payload markup.SavePayload
	if !s.decodeJSON(w, r, &payload) {
		return
	}
	if payload.Schema != markup.SavePayloadSchema {
		s.respondError(w, http.StatusBadRequest,
			fmt.Sprintf("unsupported schema %q, want %q", payload.Schema, markup.SavePayloadSchema))
		return
	}
	if payload.PDFFile == "" {
		s.respondError(w, http.StatusBadRequest, "pdf_file is required")
		return
	}

	// Guard the name before deriving a data file from it.
	if _, err := s.docs.Resolve(payload.PDFFile); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	path, err := s.writeCoordinates(payload)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"path":    path,
		"count":   len(payload.Selections),
	})
}

// writeCoordinates stores the payload next to the template database,
// one JSON file per document.
func (s *Server) writeCoordinates(payload markup.SavePayload) (string, error) {
	dir := filepath.Join(s.cfg.DataDirectory, "coordinates")
	if err := os.MkdirAll(dir, config.DefaultDirPerm); err != nil {
		return "", fmt.Errorf("cannot create coordinates directory: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(payload.PDFFile), filepath.Ext(payload.PDFFile))
	path := filepath.Join(dir, base+".json")

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("cannot encode payload: %w", err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", fmt.Errorf("cannot write payload: %w", err)
	}
	return path, nil
}

// statusForDocError maps document service failures onto HTTP statuses.
func statusForDocError(err error) int {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "does not exist"):
		return http.StatusNotFound
	case strings.Contains(msg, "outside configured directory"):
		return http.StatusBadRequest
	default:
		return http.StatusUnprocessableEntity
	}
}
