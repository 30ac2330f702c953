// Package server exposes the recommendation service over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/pario-ai/stylist/pkg/budget"
	"github.com/pario-ai/stylist/pkg/metrics"
	"github.com/pario-ai/stylist/pkg/models"
	"github.com/pario-ai/stylist/pkg/outfits"
	"github.com/pario-ai/stylist/pkg/recommend"
	"github.com/pario-ai/stylist/pkg/wardrobe"
)

const maxBodyBytes = 1 << 20

// Recommender produces recommendations. *recommend.Service implements it.
type Recommender interface {
	Suggest(ctx context.Context, req recommend.Request) (*models.OutfitRecommendation, error)
	Usage(ctx context.Context) (models.UsageStats, error)
}

// SavedOutfits is the saved-outfit gateway. *outfits.Gateway implements it.
type SavedOutfits interface {
	Save(ctx context.Context, req models.SaveRequest) (models.SavedOutfit, error)
	List(ctx context.Context) ([]models.SavedOutfit, error)
	Delete(ctx context.Context, id int64) error
}

// Server is the stylist HTTP API.
type Server struct {
	addr    string
	rec     Recommender
	saved   SavedOutfits
	metrics *metrics.Collector
	logger  *slog.Logger
	mux     *http.ServeMux
}

// New creates a Server. saved and m may be nil, which disables their routes.
func New(addr string, rec Recommender, saved SavedOutfits, m *metrics.Collector, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:    addr,
		rec:     rec,
		saved:   saved,
		metrics: m,
		logger:  logger.With("component", "server"),
		mux:     http.NewServeMux(),
	}
	s.mux.HandleFunc("POST /api/outfits/suggest", s.handleSuggest)
	s.mux.HandleFunc("GET /api/outfits/usage", s.handleUsage)
	if saved != nil {
		s.mux.HandleFunc("POST /api/outfits/save", s.handleSave)
		s.mux.HandleFunc("GET /api/outfits/saved", s.handleListSaved)
		s.mux.HandleFunc("DELETE /api/outfits/saved/{id}", s.handleDeleteSaved)
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	if m != nil {
		s.mux.Handle("GET /metrics", m.Handler())
	}
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("stylist listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type suggestRequest struct {
	Request  string `json:"request"`
	Season   string `json:"season,omitempty"`
	Style    string `json:"style,omitempty"`
	Category string `json:"category,omitempty"`
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	var body suggestRequest
	if err := decode(w, r, &body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "invalid request body", nil)
		return
	}
	rec, err := s.rec.Suggest(r.Context(), recommend.Request{
		Text: body.Request,
		Filter: wardrobe.Filter{
			Season:   body.Season,
			Style:    body.Style,
			Category: body.Category,
		},
	})
	if err != nil {
		s.writeSuggestError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) writeSuggestError(w http.ResponseWriter, err error) {
	cat := recommend.Classify(err)
	status := statusFor(cat)
	var remaining *float64
	message := messageFor(cat)

	var rej *budget.RejectedError
	if errors.As(err, &rej) {
		r := rej.RemainingUSD
		remaining = &r
		message = fmt.Sprintf("Monthly budget of $%.2f reached ($%.2f remaining). Try again next month.", rej.CapUSD, rej.RemainingUSD)
	}
	var lim *budget.LimitError
	if errors.As(err, &lim) {
		message = fmt.Sprintf("%s request limit of %d reached. Try again later.", lim.Window, lim.Limit)
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("suggest failed", "category", cat, "error", err)
	} else {
		s.logger.Info("suggest rejected", "category", cat, "error", err)
	}
	writeJSONError(w, status, string(cat), message, remaining)
}

func statusFor(cat recommend.Category) int {
	switch cat {
	case recommend.CategoryEmptyRequest:
		return http.StatusBadRequest
	case recommend.CategoryBudgetExceeded, recommend.CategoryRateLimited:
		return http.StatusTooManyRequests
	case recommend.CategoryNoValidItems:
		return http.StatusUnprocessableEntity
	case recommend.CategorySchemaMismatch, recommend.CategoryProviderError, recommend.CategoryProviderRateLimited:
		return http.StatusBadGateway
	case recommend.CategoryTimeout:
		return http.StatusGatewayTimeout
	case recommend.CategoryLedgerUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func messageFor(cat recommend.Category) string {
	switch cat {
	case recommend.CategoryEmptyRequest:
		return "Describe the occasion or style you want."
	case recommend.CategoryRateLimited:
		return "Request limit reached. Try again later."
	case recommend.CategoryNoValidItems:
		return "No matching items in your wardrobe. Add items or rephrase the request."
	case recommend.CategorySchemaMismatch:
		return "The stylist returned an unreadable answer. Try again."
	case recommend.CategoryProviderError, recommend.CategoryProviderRateLimited:
		return "The model provider is unavailable. Try again shortly."
	case recommend.CategoryTimeout:
		return "The stylist took too long to answer. Try again."
	case recommend.CategoryLedgerUnavailable:
		return "Budget tracking is unavailable. Try again shortly."
	}
	return "internal error"
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	stats, err := s.rec.Usage(r.Context())
	if err != nil {
		s.logger.Error("usage failed", "error", err)
		writeJSONError(w, http.StatusServiceUnavailable, string(recommend.CategoryLedgerUnavailable), messageFor(recommend.CategoryLedgerUnavailable), nil)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type saveResponse struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var req models.SaveRequest
	if err := decode(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "invalid request body", nil)
		return
	}
	saved, err := s.saved.Save(r.Context(), req)
	if errors.Is(err, outfits.ErrInvalidGender) {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
		return
	}
	if err != nil {
		s.logger.Error("save outfit failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, string(recommend.CategoryInternal), "failed to save outfit", nil)
		return
	}
	s.logger.Info("saved outfit", "id", saved.ID, "name", saved.Name)
	writeJSON(w, http.StatusOK, saveResponse{ID: saved.ID, Name: saved.Name, Message: "Outfit saved successfully!"})
}

func (s *Server) handleListSaved(w http.ResponseWriter, r *http.Request) {
	list, err := s.saved.List(r.Context())
	if err != nil {
		s.logger.Error("list saved outfits failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, string(recommend.CategoryInternal), "failed to list outfits", nil)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleDeleteSaved(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "invalid outfit id", nil)
		return
	}
	switch err := s.saved.Delete(r.Context(), id); {
	case errors.Is(err, outfits.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "not_found", "Outfit not found", nil)
	case err != nil:
		s.logger.Error("delete saved outfit failed", "id", id, "error", err)
		writeJSONError(w, http.StatusInternalServerError, string(recommend.CategoryInternal), "failed to delete outfit", nil)
	default:
		writeJSON(w, http.StatusOK, map[string]string{"message": "Outfit deleted successfully"})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Code               string   `json:"code"`
	Message            string   `json:"message"`
	RemainingBudgetUSD *float64 `json:"remaining_budget_usd,omitempty"`
}

func writeJSONError(w http.ResponseWriter, code int, errCode, message string, remaining *float64) {
	writeJSON(w, code, map[string]errorBody{
		"error": {Code: errCode, Message: message, RemainingBudgetUSD: remaining},
	})
}
