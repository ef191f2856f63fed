package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/brabijan/webshare-arr-connector/internal/domain"
	"github.com/brabijan/webshare-arr-connector/internal/maintain"
	"github.com/brabijan/webshare-arr-connector/internal/rank"
	"github.com/brabijan/webshare-arr-connector/internal/search"
)

type SearchService interface {
	Search(ctx context.Context, query domain.SearchQuery) (search.Result, error)
}

type ConfirmService interface {
	Open(ctx context.Context, query domain.SearchQuery, candidates []domain.ScoredCandidate) (domain.PendingConfirmation, error)
	Get(ctx context.Context, id string) (domain.PendingConfirmation, error)
	ListOpen(ctx context.Context) ([]domain.PendingConfirmation, error)
	Confirm(ctx context.Context, id string, index int) (domain.HistoryRecord, error)
	History(ctx context.Context, filter domain.HistoryFilter) ([]domain.HistoryRecord, error)
}

type SweepService interface {
	Sweep(ctx context.Context) (maintain.Report, error)
}

const maxQueryLength = 500

const defaultTopCandidates = domain.MaxPendingCandidates

type Server struct {
	search  SearchService
	confirm ConfirmService
	sweeper SweepService
	hub     *EventHub
	top     int
	logger  *slog.Logger
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithSweeper(sweeper SweepService) ServerOption {
	return func(s *Server) {
		s.sweeper = sweeper
	}
}

func WithEventHub(hub *EventHub) ServerOption {
	return func(s *Server) {
		s.hub = hub
	}
}

// WithTopCandidates caps how many ranked results a pending confirmation
// opened through this server keeps.
func WithTopCandidates(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.top = n
		}
	}
}

func NewServer(searchService SearchService, confirmService ConfirmService, options ...ServerOption) *Server {
	server := &Server{
		search:  searchService,
		confirm: confirmService,
		top:     defaultTopCandidates,
		logger:  slog.Default(),
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	return server
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/search", s.handleSearch)
	mux.HandleFunc("/api/pending", s.handlePendingList)
	mux.HandleFunc("/api/pending/", s.handlePendingDetail)
	mux.HandleFunc("/api/confirm", s.handleConfirm)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/maintenance/sweep", s.handleSweep)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/webhook/sonarr", s.handleSonarrWebhook)
	mux.HandleFunc("/webhook/radarr", s.handleRadarrWebhook)
	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "webshare-arr-connector",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	)
	return recoveryMiddleware(s.logger, rateLimitMiddleware(50, 100, metricsMiddleware(traced)))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}

	title := strings.TrimSpace(r.URL.Query().Get("q"))
	if title == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query is required")
		return
	}
	if len(title) > maxQueryLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "query too long (max 500 characters)")
		return
	}
	season, err := parseNonNegativeInt(r, "season", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid season")
		return
	}
	episode, err := parseNonNegativeInt(r, "episode", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid episode")
		return
	}
	year, err := parseNonNegativeInt(r, "year", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid year")
		return
	}
	openPending := parseOptionalBool(r.URL.Query().Get("pending"))

	query := domain.SearchQuery{
		Title:     title,
		Season:    season,
		Episode:   episode,
		Year:      year,
		Source:    domain.QuerySourceManual,
		Requested: time.Now().UTC(),
	}

	result, err := s.search.Search(r.Context(), query)
	if err != nil {
		s.logger.Warn("search request failed",
			slog.String("query", truncate(query.Key(), 80)),
			slog.String("error", err.Error()),
		)
		s.writeSearchError(w, err)
		return
	}

	response := map[string]any{
		"query":      result.Query,
		"fromCache":  result.FromCache,
		"providers":  result.Providers,
		"elapsedMs":  result.ElapsedMS,
		"count":      len(result.Candidates),
		"candidates": result.Candidates,
	}
	if openPending && s.confirm != nil && len(result.Candidates) > 0 {
		pending, openErr := s.confirm.Open(r.Context(), query, rank.Top(result.Candidates, s.top))
		if openErr != nil {
			s.logger.Error("pending open failed",
				slog.String("query", truncate(query.Key(), 80)),
				slog.String("error", openErr.Error()),
			)
			writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "could not create pending confirmation")
			return
		}
		response["pendingId"] = pending.ID
	}

	s.logger.Info("search completed",
		slog.String("query", truncate(query.Key(), 80)),
		slog.Int("count", len(result.Candidates)),
		slog.Bool("fromCache", result.FromCache),
		slog.Int64("elapsedMs", result.ElapsedMS),
	)
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) writeSearchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, search.ErrInvalidQuery):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, search.ErrNoProviders):
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", err.Error())
	case errors.Is(err, search.ErrAllProvidersFailed):
		writeError(w, http.StatusBadGateway, "upstream_failed", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "search failed")
	}
}

func (s *Server) handlePendingList(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/pending" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.confirm == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "confirm service is not configured")
		return
	}

	items, err := s.confirm.ListOpen(r.Context())
	if err != nil {
		s.logger.Error("pending list failed", slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "could not list pending confirmations")
		return
	}
	if items == nil {
		items = []domain.PendingConfirmation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(items),
		"items": items,
	})
}

func (s *Server) handlePendingDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.confirm == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "confirm service is not configured")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/pending/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}

	pending, err := s.confirm.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "pending confirmation not found")
			return
		}
		s.logger.Error("pending get failed", slog.String("id", id), slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "could not load pending confirmation")
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.confirm == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "confirm service is not configured")
		return
	}

	var payload struct {
		PendingID string `json:"pendingId"`
		Index     int    `json:"index"`
	}
	if err := decodeJSONBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(payload.PendingID) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "pendingId is required")
		return
	}

	record, err := s.confirm.Confirm(r.Context(), payload.PendingID, payload.Index)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", "pending confirmation not found")
		case errors.Is(err, domain.ErrIndexOutOfRange):
			writeError(w, http.StatusBadRequest, "invalid_request", "candidate index out of range")
		case errors.Is(err, domain.ErrConfirmationConflict):
			writeError(w, http.StatusConflict, "conflict", "pending confirmation already decided")
		case record.Outcome == domain.OutcomeFailed:
			// Confirmed but the dispatch to the download manager failed; the
			// outcome is already recorded in history.
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"record": record,
				"error": map[string]string{
					"code":    "dispatch_failed",
					"message": err.Error(),
				},
			})
		default:
			s.logger.Error("confirm failed",
				slog.String("pendingId", payload.PendingID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "confirm failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"record": record})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.confirm == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "confirm service is not configured")
		return
	}

	filter := domain.HistoryFilter{
		QueryKey: strings.TrimSpace(r.URL.Query().Get("queryKey")),
	}
	switch outcome := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("outcome"))); outcome {
	case "":
	case string(domain.OutcomeSucceeded), string(domain.OutcomeFailed):
		filter.Outcome = domain.HistoryOutcome(outcome)
	default:
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid outcome")
		return
	}
	limit, err := parseNonNegativeInt(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid limit")
		return
	}
	filter.Limit = limit

	items, err := s.confirm.History(r.Context(), filter)
	if err != nil {
		s.logger.Error("history list failed", slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "could not list history")
		return
	}
	if items == nil {
		items = []domain.HistoryRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(items),
		"items": items,
	})
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.sweeper == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "sweeper is not configured")
		return
	}

	report, err := s.sweeper.Sweep(r.Context())
	if err != nil {
		s.logger.Error("manual sweep failed", slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "sweep failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.Error(w, "websocket not available", http.StatusServiceUnavailable)
		return
	}
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("ws upgrade failed", slog.String("error", err.Error()))
		return
	}
	client := &wsClient{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, 256),
	}
	s.hub.register <- client
	go client.writePump()
	go client.readPump()
}

func decodeJSONBody(r *http.Request, dest any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}

func parseNonNegativeInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return 0, errors.New("invalid value")
	}
	return parsed, nil
}

func parseOptionalBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
