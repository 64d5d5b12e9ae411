package server

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/haowjy/luminote-go"
	"github.com/haowjy/luminote-go/internal/requestid"
	"github.com/haowjy/luminote-go/internal/sse"
	"github.com/haowjy/luminote-go/internal/templates"
)

const maxRequestBody = 10 << 20

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

type translateResponse struct {
	Success  bool              `json:"success"`
	Data     translateData     `json:"data"`
	Metadata translateMetadata `json:"metadata"`
}

type translateData struct {
	TranslatedBlocks []luminote.TranslatedBlock `json:"translated_blocks"`
}

type translateMetadata struct {
	RequestID      string  `json:"request_id"`
	Timestamp      string  `json:"timestamp"`
	ProcessingTime float64 `json:"processing_time"`
}

type validateConfigRequest struct {
	Provider luminote.ProviderID `json:"provider"`
	Model    string              `json:"model"`
	APIKey   string              `json:"api_key"`
}

type validateConfigResponse struct {
	Valid        bool                       `json:"valid"`
	Provider     string                     `json:"provider"`
	Model        string                     `json:"model"`
	Capabilities luminote.ModelCapabilities `json:"capabilities"`
	Details      map[string]any             `json:"details"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Version: s.version})
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	req, ok := s.decodeTranslationRequest(w, r)
	if !ok {
		return
	}

	blocks, err := s.svc.TranslateBlocks(r.Context(), req)
	if err != nil {
		s.logger.Warn("translation failed",
			"request_id", requestid.FromContext(r.Context()),
			"provider", req.Provider.String(),
			"error", err,
		)
		writeErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, translateResponse{
		Success: true,
		Data:    translateData{TranslatedBlocks: blocks},
		Metadata: translateMetadata{
			RequestID:      requestid.FromContext(r.Context()),
			Timestamp:      time.Now().UTC().Format(time.RFC3339),
			ProcessingTime: math.Round(time.Since(start).Seconds()*100) / 100,
		},
	})
}

// handleTranslateStream validates the request before committing to an SSE
// response, so bad requests still get a JSON error with a 4xx status.
func (s *Server) handleTranslateStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeTranslationRequest(w, r)
	if !ok {
		return
	}

	stream, err := sse.NewWriter(w)
	if err != nil {
		s.logger.Error("streaming unsupported", "error", err)
		writeErr(w, r, err)
		return
	}

	logger := s.logger.With("request_id", requestid.FromContext(r.Context()))
	logger.Info("starting streaming translation",
		"provider", req.Provider.String(),
		"model", req.Model,
		"target_language", req.TargetLanguage,
		"block_count", len(req.ContentBlocks),
	)

	if _, err := s.svc.StreamBlocks(r.Context(), req, stream); err != nil && r.Context().Err() == nil {
		logger.Warn("translation stream ended early", "error", err)
	}
}

func (s *Server) handleValidateConfig(w http.ResponseWriter, r *http.Request) {
	var body validateConfigRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	provider := body.Provider.Normalize()
	model := strings.TrimSpace(body.Model)

	if strings.TrimSpace(body.APIKey) == "" {
		writeErr(w, r, luminote.NewValidationError("api_key", "", "API key must not be empty"))
		return
	}
	if !s.svc.HasProvider(provider) {
		writeErr(w, r, luminote.NewUnsupportedProviderError(provider.String(), s.svc.Providers()))
		return
	}

	logger := s.logger.With(
		"request_id", requestid.FromContext(r.Context()),
		"provider", provider.String(),
		"model", model,
	)
	logger.Info("validating API configuration")

	result, err := s.svc.ValidateConfig(r.Context(), provider, model, body.APIKey)
	if err != nil {
		logger.Warn("API configuration validation failed", "error", err)
		writeErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, validateConfigResponse{
		Valid:        result.Valid,
		Provider:     result.Provider.String(),
		Model:        result.Model,
		Capabilities: result.Capabilities,
		Details:      map[string]any{},
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, luminote.ErrorCodeValidation, "Route not found: "+r.URL.Path, nil)
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusMethodNotAllowed, luminote.ErrorCodeValidation, "Method not allowed: "+r.Method, nil)
}

// decodeTranslationRequest decodes, normalizes and validates a translation
// request, writing the error response itself when it returns false.
func (s *Server) decodeTranslationRequest(w http.ResponseWriter, r *http.Request) (*luminote.TranslationStreamRequest, bool) {
	var body luminote.TranslationStreamRequest
	if !decodeJSON(w, r, &body) {
		return nil, false
	}

	req := body.Normalize()
	if err := req.Validate(); err != nil {
		writeErr(w, r, err)
		return nil, false
	}
	if !s.svc.HasProvider(req.Provider) {
		writeErr(w, r, luminote.NewUnsupportedProviderError(req.Provider.String(), s.svc.Providers()))
		return nil, false
	}
	if req.TemplateID != "" && !s.svc.Templates().Has(req.TemplateID) {
		writeErr(w, r, templates.NotFoundError(req.TemplateID))
		return nil, false
	}
	return &req, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		message := "Invalid JSON body: " + err.Error()
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			message = "Request body too large"
			status = http.StatusRequestEntityTooLarge
		case errors.Is(err, io.EOF):
			message = "Request body is required"
		}
		writeError(w, r, status, luminote.ErrorCodeValidation, message, nil)
		return false
	}
	return true
}
