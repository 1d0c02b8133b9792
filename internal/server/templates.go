package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/metabib/pdf-markup/internal/extract"
	"github.com/metabib/pdf-markup/internal/geom"
	"github.com/metabib/pdf-markup/internal/template"
)

// pageSizeFromQuery reads page_width and page_height, defaulting to A4
// when absent.
func pageSizeFromQuery(r *http.Request) (float64, float64, error) {
	width, height := 595.0, 842.0
	if raw := r.URL.Query().Get("page_width"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			return 0, 0, fmt.Errorf("invalid page_width %q", raw)
		}
		width = v
	}
	if raw := r.URL.Query().Get("page_height"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			return 0, 0, fmt.Errorf("invalid page_height %q", raw)
		}
		height = v
	}
	return width, height, nil
}

func (s *Server) handleTemplateSuggestions(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		s.respondError(w, http.StatusBadRequest, "key is required")
		return
	}
	width, height, err := pageSizeFromQuery(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	pub, err := s.engine.Publication(r.Context(), key)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if pub == nil {
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("unknown publication: %s", key))
		return
	}

	suggestions, err := s.engine.SuggestAll(r.Context(), key, width, height)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"key":         key,
		"publication": pub,
		"suggestions": suggestions,
	})
}

type templateSaveRequest struct {
	Key             string  `json:"key"`
	PublicationName string  `json:"publication_name"`
	FieldID         string  `json:"field_id"`
	Page            int     `json:"page"`
	X1              float64 `json:"x1"`
	Y1              float64 `json:"y1"`
	X2              float64 `json:"x2"`
	Y2              float64 `json:"y2"`
	PageWidth       float64 `json:"page_width"`
	PageHeight      float64 `json:"page_height"`
}

func (s *Server) handleTemplateSave(w http.ResponseWriter, r *http.Request) {
	var req templateSaveRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if _, ok := s.registry.Get(req.FieldID); !ok {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown field: %s", req.FieldID))
		return
	}

	sample := template.Sample{
		Page:       req.Page,
		Rect:       geom.NewRect(req.X1, req.Y1, req.X2, req.Y2),
		PageWidth:  req.PageWidth,
		PageHeight: req.PageHeight,
	}
	if err := s.engine.AddSample(r.Context(), req.Key, req.PublicationName, req.FieldID, sample); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	suggestions, err := s.engine.SuggestAll(r.Context(), req.Key, req.PageWidth, req.PageHeight)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"suggestions": suggestions,
	})
}

func (s *Server) handleTemplateResetField(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key     string `json:"key"`
		FieldID string `json:"field_id"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}

	removed, err := s.engine.ResetField(r.Context(), req.Key, req.FieldID)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !removed {
		s.respondError(w, http.StatusNotFound,
			fmt.Sprintf("no template for publication %s field %s", req.Key, req.FieldID))
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleTemplateDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key string `json:"key"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}

	removed, err := s.engine.ResetAll(r.Context(), req.Key)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !removed {
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("unknown publication: %s", req.Key))
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleTemplateList(w http.ResponseWriter, r *http.Request) {
	publications, err := s.engine.List(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"publications": publications,
	})
}

type templateApplyRequest struct {
	Key        string  `json:"key"`
	PDFFile    string  `json:"pdf_file"`
	PageWidth  float64 `json:"page_width"`
	PageHeight float64 `json:"page_height"`
}

// appliedField is one suggestion together with the text extracted from
// its region.
type appliedField struct {
	Suggestion template.Suggestion `json:"suggestion"`
	Text       string              `json:"text"`
}

func (s *Server) handleTemplateApply(w http.ResponseWriter, r *http.Request) {
	var req templateApplyRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Key == "" || req.PDFFile == "" {
		s.respondError(w, http.StatusBadRequest, "key and pdf_file are required")
		return
	}
	if req.PageWidth <= 0 || req.PageHeight <= 0 {
		req.PageWidth, req.PageHeight = 595, 842
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

	suggestions, err := s.engine.SuggestAll(r.Context(), req.Key, req.PageWidth, req.PageHeight)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(suggestions) == 0 {
		s.respondError(w, http.StatusNotFound, fmt.Sprintf("no templates for publication: %s", req.Key))
		return
	}

	// Field classes carry their own post-processing, so each region is
	// extracted with its own options.
	applied := make(map[string]appliedField, len(suggestions))
	for fieldID, suggestion := range suggestions {
		resp, err := s.extractor.Extract(r.Context(), extract.Request{
			PDFFile: path,
			Selections: []extract.Selection{{
				Page:       suggestion.Page,
				X1:         suggestion.Rect.X1,
				Y1:         suggestion.Rect.Y1,
				X2:         suggestion.Rect.X2,
				Y2:         suggestion.Rect.Y2,
				PageWidth:  req.PageWidth,
				PageHeight: req.PageHeight,
				FieldID:    fieldID,
			}},
			Options: extract.OptionsForClass(s.registry.ClassOf(fieldID)),
		})
		if err != nil {
			s.logger.Warn("template apply extraction failed",
				"field", fieldID, "error", err)
			continue
		}
		if len(resp.Extracted) == 0 {
			continue
		}
		applied[fieldID] = appliedField{
			Suggestion: suggestion,
			Text:       resp.Extracted[0].Text,
		}
	}

	if err := s.engine.IncrementProcessed(r.Context(), req.Key); err != nil {
		s.logger.Warn("failed to bump processed counter", "key", req.Key, "error", err)
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"key":     req.Key,
		"fields":  applied,
	})
}
