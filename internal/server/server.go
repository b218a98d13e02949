package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"guild-tracker/internal/config"
	"guild-tracker/internal/constants"
	"guild-tracker/internal/middleware"
	"guild-tracker/internal/repository"
	"guild-tracker/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type Server struct {
	upload   *service.UploadService
	sync     *service.SyncService
	heatmap  *service.HeatmapService
	players  *repository.PlayerRepository
	runs     *repository.RunRepository
	guild    *repository.GuildRunRepository
	events   *repository.EventRepository
	uploader *repository.UploaderRepository
	raids    *repository.RaidRepository
	stats    *service.StatsAggregator
	logger   zerolog.Logger
	cfg      *config.Config
}

func New(
	upload *service.UploadService,
	syncSvc *service.SyncService,
	heatmap *service.HeatmapService,
	players *repository.PlayerRepository,
	runs *repository.RunRepository,
	guild *repository.GuildRunRepository,
	events *repository.EventRepository,
	uploader *repository.UploaderRepository,
	raids *repository.RaidRepository,
	stats *service.StatsAggregator,
	cfg *config.Config,
	logger zerolog.Logger,
) *Server {
	return &Server{
		upload:   upload,
		sync:     syncSvc,
		heatmap:  heatmap,
		players:  players,
		runs:     runs,
		guild:    guild,
		events:   events,
		uploader: uploader,
		raids:    raids,
		stats:    stats,
		cfg:      cfg,
		logger:   logger,
	}
}

func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID(s.logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.UploaderAuth(s.cfg.UploaderKeys, s.logger))
			r.Post("/upload", s.handleUpload)
		})

		r.Get("/players", s.handleListPlayers)
		r.Post("/players", s.handleCreatePlayer)
		r.Get("/players/{realm}/{name}", s.handleGetPlayer)
		r.Delete("/players/{id}", s.handleDeletePlayer)
		r.Post("/players/{id}/reset-stats", s.handleResetStats)
		r.Get("/players/{id}/runs", s.handleListRuns)

		r.Get("/guild-runs", s.handleGuildRuns)
		r.Get("/feed", s.handleFeed)
		r.Get("/activity/heatmap", s.handleHeatmap)
		r.Get("/raid-progress", s.handleRaidProgress)
		r.Get("/uploaders/status", s.handleUploaderStatus)

		r.Post("/sync/deep", s.handleDeepSync)
	})

	return r
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	uploaderID := middleware.GetUploaderID(r.Context())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 10<<20))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	req, err := service.ParseUploadRequest(body)
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{
				"error":   "validation failed",
				"field":   verr.Field,
				"message": verr.Message,
			})
			return
		}
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.upload.Process(r.Context(), uploaderID, req)
	if err != nil {
		var ooo *service.OutOfOrderError
		if errors.As(err, &ooo) {
			s.writeJSON(w, http.StatusConflict, map[string]any{
				"error":    "out_of_order",
				"expected": ooo.Expected,
				"received": ooo.Received,
			})
			return
		}
		s.logger.Error().Err(err).Str("uploader", uploaderID).Msg("upload processing failed")
		s.writeError(w, http.StatusInternalServerError, "upload processing failed")
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListPlayers(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	players, err := s.players.List(r.Context(), activeOnly)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list players")
		return
	}
	s.writeJSON(w, http.StatusOK, players)
}

type createPlayerRequest struct {
	Name  string `json:"name"`
	Realm string `json:"realm"`
	Class string `json:"class"`
}

func (s *Server) handleCreatePlayer(w http.ResponseWriter, r *http.Request) {
	var req createPlayerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed JSON")
		return
	}
	if req.Name == "" || req.Realm == "" {
		s.writeError(w, http.StatusBadRequest, "name and realm are required")
		return
	}

	player, err := s.players.UpsertRoster(r.Context(), req.Name, req.Realm, req.Class, "", 99)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to create player")
		return
	}
	s.writeJSON(w, http.StatusCreated, player)
}

func (s *Server) handleGetPlayer(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	realm := chi.URLParam(r, "realm")

	player, err := s.players.GetByNameRealm(r.Context(), name, realm)
	if errors.Is(err, repository.ErrPlayerNotFound) {
		s.writeError(w, http.StatusNotFound, "player not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load player")
		return
	}
	s.writeJSON(w, http.StatusOK, player)
}

func (s *Server) handleDeletePlayer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.players.Delete(r.Context(), id)
	if errors.Is(err, repository.ErrPlayerNotFound) {
		s.writeError(w, http.StatusNotFound, "player not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to delete player")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResetStats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.players.ResetStats(r.Context(), id); err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to reset stats")
		return
	}
	s.stats.Reset(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	runs, err := s.runs.ListByPlayer(r.Context(), id, constants.RunRetention)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	s.writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGuildRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.guild.List(r.Context(), constants.GuildRunsLimit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list guild runs")
		return
	}
	s.writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	events, err := s.events.List(r.Context(), constants.FeedLimit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list feed")
		return
	}
	s.writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	heatmap, err := s.heatmap.Build(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to build heatmap")
		return
	}
	s.writeJSON(w, http.StatusOK, heatmap)
}

func (s *Server) handleRaidProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := s.raids.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list raid progress")
		return
	}
	s.writeJSON(w, http.StatusOK, progress)
}

func (s *Server) handleUploaderStatus(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.uploader.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list uploader status")
		return
	}
	s.writeJSON(w, http.StatusOK, statuses)
}

type deepSyncRequest struct {
	Name  string `json:"name"`
	Realm string `json:"realm"`
}

func (s *Server) handleDeepSync(w http.ResponseWriter, r *http.Request) {
	var req deepSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed JSON")
		return
	}
	if req.Name == "" || req.Realm == "" {
		s.writeError(w, http.StatusBadRequest, "name and realm are required")
		return
	}

	result, err := s.sync.DeepSync(r.Context(), req.Name, req.Realm)
	if errors.Is(err, repository.ErrPlayerNotFound) {
		s.writeError(w, http.StatusNotFound, "player not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "deep sync failed")
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
