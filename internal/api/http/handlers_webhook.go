package apihttp

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/brabijan/webshare-arr-connector/internal/domain"
	"github.com/brabijan/webshare-arr-connector/internal/rank"
)

// Sonarr and Radarr send rich payloads; only the fields needed to build a
// search query are decoded, the rest is ignored.
type sonarrWebhook struct {
	EventType string `json:"eventType"`
	Series    struct {
		Title string `json:"title"`
		Year  int    `json:"year"`
	} `json:"series"`
	Episodes []struct {
		SeasonNumber  int `json:"seasonNumber"`
		EpisodeNumber int `json:"episodeNumber"`
	} `json:"episodes"`
}

type radarrWebhook struct {
	EventType string `json:"eventType"`
	Movie     struct {
		Title string `json:"title"`
		Year  int    `json:"year"`
	} `json:"movie"`
}

func webhookEventHandled(eventType string) bool {
	switch eventType {
	case "Grab", "Download":
		return true
	default:
		return false
	}
}

func (s *Server) handleSonarrWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload sonarrWebhook
	if err := decodeWebhookBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	s.logger.Info("sonarr webhook received", slog.String("eventType", payload.EventType))

	if !webhookEventHandled(payload.EventType) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "ignored",
			"reason": "event type " + payload.EventType + " not handled",
		})
		return
	}
	if strings.TrimSpace(payload.Series.Title) == "" || len(payload.Episodes) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "webhook payload has no series or episodes")
		return
	}

	episode := payload.Episodes[0]
	s.ingestWebhookQuery(w, r, domain.SearchQuery{
		Title:     payload.Series.Title,
		Season:    episode.SeasonNumber,
		Episode:   episode.EpisodeNumber,
		Source:    domain.QuerySourceSonarr,
		Requested: time.Now().UTC(),
	})
}

func (s *Server) handleRadarrWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload radarrWebhook
	if err := decodeWebhookBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	s.logger.Info("radarr webhook received", slog.String("eventType", payload.EventType))

	if !webhookEventHandled(payload.EventType) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "ignored",
			"reason": "event type " + payload.EventType + " not handled",
		})
		return
	}
	if strings.TrimSpace(payload.Movie.Title) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "webhook payload has no movie")
		return
	}

	s.ingestWebhookQuery(w, r, domain.SearchQuery{
		Title:     payload.Movie.Title,
		Year:      payload.Movie.Year,
		Source:    domain.QuerySourceRadarr,
		Requested: time.Now().UTC(),
	})
}

// ingestWebhookQuery runs the search pipeline for a webhook-triggered query
// and opens a pending confirmation from the top ranked candidates.
func (s *Server) ingestWebhookQuery(w http.ResponseWriter, r *http.Request, query domain.SearchQuery) {
	if s.search == nil || s.confirm == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "services are not configured")
		return
	}

	result, err := s.search.Search(r.Context(), query)
	if err != nil {
		s.logger.Warn("webhook search failed",
			slog.String("query", truncate(query.Key(), 80)),
			slog.String("source", string(query.Source)),
			slog.String("error", err.Error()),
		)
		s.writeSearchError(w, err)
		return
	}
	if len(result.Candidates) == 0 {
		s.logger.Warn("webhook search found nothing",
			slog.String("query", truncate(query.Key(), 80)),
			slog.String("source", string(query.Source)),
		)
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "no_results",
			"message": "no files found on Webshare",
		})
		return
	}

	pending, err := s.confirm.Open(r.Context(), query, rank.Top(result.Candidates, s.top))
	if err != nil {
		s.logger.Error("webhook pending open failed",
			slog.String("query", truncate(query.Key(), 80)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "could not create pending confirmation")
		return
	}

	s.logger.Info("webhook pending opened",
		slog.String("query", truncate(query.Key(), 80)),
		slog.String("source", string(query.Source)),
		slog.String("pendingId", pending.ID),
		slog.Int("candidates", len(pending.Candidates)),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "success",
		"pendingId":    pending.ID,
		"resultsCount": len(pending.Candidates),
	})
}

// decodeWebhookBody decodes leniently; webhook payloads carry many fields
// beyond the ones used here.
func decodeWebhookBody(r *http.Request, dest any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dest)
}
