package server

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/haowjy/luminote-go"
	"github.com/haowjy/luminote-go/internal/extract"
	"github.com/haowjy/luminote-go/internal/requestid"
	"github.com/haowjy/luminote-go/internal/templates"
	"github.com/haowjy/luminote-go/internal/versions"
)

type extractRequest struct {
	URL string `json:"url"`
}

type extractResponse struct {
	Success  bool              `json:"success"`
	Data     *extract.Document `json:"data"`
	Metadata extractMetadata   `json:"metadata"`
}

type extractMetadata struct {
	RequestID      string  `json:"request_id"`
	ProcessingTime float64 `json:"processing_time"`
}

type createTemplateRequest struct {
	Name           string            `json:"name"`
	Description    string            `json:"description"`
	PromptTemplate string            `json:"prompt_template"`
	Variables      map[string]string `json:"variables"`
}

type templateListResponse struct {
	Templates []templates.Template `json:"templates"`
	Count     int                  `json:"count"`
}

type renderTemplateRequest struct {
	TemplateID string            `json:"template_id"`
	Variables  map[string]string `json:"variables"`
}

type renderTemplateResponse struct {
	TemplateID     string            `json:"template_id"`
	RenderedPrompt string            `json:"rendered_prompt"`
	VariablesUsed  map[string]string `json:"variables_used"`
}

type deleteTemplateResponse struct {
	Deleted    bool   `json:"deleted"`
	TemplateID string `json:"template_id"`
}

type versionListResponse struct {
	DocumentURL string              `json:"document_url"`
	Versions    []*versions.Version `json:"versions"`
	Count       int                 `json:"count"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var body extractRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	url := strings.TrimSpace(body.URL)

	doc, err := s.extractor.Extract(r.Context(), url)
	if err != nil {
		s.logger.Warn("extraction failed",
			"request_id", requestid.FromContext(r.Context()),
			"url", url,
			"error", err,
		)
		writeErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, extractResponse{
		Success: true,
		Data:    doc,
		Metadata: extractMetadata{
			RequestID:      requestid.FromContext(r.Context()),
			ProcessingTime: math.Round(time.Since(start).Seconds()*1000) / 1000,
		},
	})
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	includeBuiltIn := true
	if v := r.URL.Query().Get("include_built_in"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeErr(w, r, luminote.NewValidationError("include_built_in", v, "include_built_in must be true or false"))
			return
		}
		includeBuiltIn = b
	}

	list := s.svc.Templates().List(includeBuiltIn)
	writeJSON(w, http.StatusOK, templateListResponse{Templates: list, Count: len(list)})
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var body createTemplateRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	tmpl, err := s.svc.Templates().Create(body.Name, body.Description, body.PromptTemplate, body.Variables)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	s.logger.Info("template created",
		"request_id", requestid.FromContext(r.Context()),
		"template_id", tmpl.ID,
		"name", tmpl.Name,
	)
	writeJSON(w, http.StatusCreated, tmpl)
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	tmpl, ok := s.svc.Templates().Get(id)
	if !ok {
		writeErr(w, r, templates.NotFoundError(id))
		return
	}
	writeJSON(w, http.StatusOK, tmpl)
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	deleted, err := s.svc.Templates().Delete(id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if !deleted {
		writeErr(w, r, templates.NotFoundError(id))
		return
	}
	writeJSON(w, http.StatusOK, deleteTemplateResponse{Deleted: true, TemplateID: id})
}

func (s *Server) handleRenderTemplate(w http.ResponseWriter, r *http.Request) {
	var body renderTemplateRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	id := strings.TrimSpace(body.TemplateID)
	if id == "" {
		writeErr(w, r, luminote.NewValidationError("template_id", "", "template_id must not be empty"))
		return
	}

	prompt, used, err := s.svc.Templates().Render(id, body.Variables)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, renderTemplateResponse{TemplateID: id, RenderedPrompt: prompt, VariablesUsed: used})
}

func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	url := strings.TrimSpace(r.URL.Query().Get("url"))
	if url == "" {
		writeErr(w, r, luminote.NewValidationError("url", "", "url query parameter is required"))
		return
	}

	list, err := s.svc.Versions().List(r.Context(), url)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if list == nil {
		list = []*versions.Version{}
	}
	writeJSON(w, http.StatusOK, versionListResponse{DocumentURL: url, Versions: list, Count: len(list)})
}

func (s *Server) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	v, err := s.svc.Versions().Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}
