package render

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"card-battle-system/pkg/api"
	"card-battle-system/pkg/config"
	"card-battle-system/pkg/db"
	"card-battle-system/pkg/logger"
	"card-battle-system/pkg/models"

	"github.com/gorilla/mux"
)

// Service handles render requests and serves stored replays.
type Service struct {
	config *config.Config
	db     *db.RenderDB
}

// NewService creates a render service backed by the given database. The
// output directory is created if missing.
func NewService(cfg *config.Config, database *db.RenderDB) (*Service, error) {
	if err := os.MkdirAll(cfg.RenderOutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Service{config: cfg, db: database}, nil
}

// HandleRender processes POST /render. Rendering is idempotent on battle id:
// a battle that was already rendered returns its original handle with the
// duplicate flag set, and the page is not rebuilt.
func (s *Service) HandleRender(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	renderLogger := logger.NewCategoryLogger(s.config.LogLevel, logger.Renderer, logger.Render).
		With().
		Str("request_id", requestID).
		Logger()

	var renderReq models.RenderRequest
	if err := json.NewDecoder(r.Body).Decode(&renderReq); err != nil {
		renderLogger.Error().Err(err).Msg("Failed to decode render request")
		api.WriteError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body", requestID)
		return
	}

	if renderReq.BattleID == "" {
		api.WriteError(w, http.StatusBadRequest, "MISSING_BATTLE_ID", "battle_id is required", requestID)
		return
	}
	if renderReq.BattleID != renderReq.Result.ID {
		renderLogger.Error().
			Str("battle_id", renderReq.BattleID).
			Str("result_id", renderReq.Result.ID).
			Msg("Battle ID mismatch")
		api.WriteError(w, http.StatusBadRequest, "BATTLE_ID_MISMATCH",
			"battle_id does not match result id", requestID)
		return
	}

	// Idempotency check: a previously rendered battle keeps its handle.
	existing, err := s.db.GetReplay(renderReq.BattleID)
	if err != nil {
		renderLogger.Error().Err(err).Msg("Failed to look up replay")
		api.WriteError(w, http.StatusInternalServerError, "DB_ERROR", "Failed to look up replay", requestID)
		return
	}
	if existing != "" {
		renderLogger.Info().
			Str("battle_id", renderReq.BattleID).
			Str("handle", existing).
			Msg("Duplicate render request")
		s.writeRenderResponse(w, existing, true)
		return
	}

	page, err := BuildReplayPage(renderReq.Result, renderReq.ParticipantA, renderReq.ParticipantB)
	if err != nil {
		renderLogger.Error().Err(err).Msg("Failed to build replay page")
		api.WriteError(w, http.StatusInternalServerError, "RENDER_FAILED", "Failed to build replay page", requestID)
		return
	}

	path := filepath.Join(s.config.RenderOutputDir, renderReq.BattleID+".html")
	if err := os.WriteFile(path, page, 0644); err != nil {
		renderLogger.Error().Err(err).Str("path", path).Msg("Failed to write replay page")
		api.WriteError(w, http.StatusInternalServerError, "WRITE_FAILED", "Failed to store replay page", requestID)
		return
	}

	handle := "/replay/" + renderReq.BattleID
	if err := s.db.SaveReplay(renderReq.BattleID, handle); err != nil {
		renderLogger.Error().Err(err).Msg("Failed to save replay record")
		api.WriteError(w, http.StatusInternalServerError, "DB_ERROR", "Failed to save replay record", requestID)
		return
	}

	renderLogger.Info().
		Str("battle_id", renderReq.BattleID).
		Str("handle", handle).
		Int("page_bytes", len(page)).
		Msg("Replay rendered")

	s.writeRenderResponse(w, handle, false)
}

// HandleReplay serves GET /replay/{battle_id}. Only battles recorded in the
// replay table are served; arbitrary file paths are not reachable.
func (s *Service) HandleReplay(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	battleID := vars["battle_id"]
	requestID := r.Header.Get("X-Request-ID")

	handle, err := s.db.GetReplay(battleID)
	if err != nil {
		api.WriteError(w, http.StatusInternalServerError, "DB_ERROR", "Failed to look up replay", requestID)
		return
	}
	if handle == "" {
		api.WriteError(w, http.StatusNotFound, "REPLAY_NOT_FOUND", "No replay for this battle", requestID)
		return
	}

	path := filepath.Join(s.config.RenderOutputDir, battleID+".html")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	http.ServeFile(w, r, path)
}

func (s *Service) writeRenderResponse(w http.ResponseWriter, handle string, duplicate bool) {
	response := models.RenderResponse{
		Handle:    handle,
		Duplicate: duplicate,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// Router builds the render service HTTP routes. The render endpoint sits
// behind HMAC authentication; replay pages and probes are public.
func (s *Service) Router(mw *api.Middleware) *mux.Router {
	r := mux.NewRouter()
	r.Use(mw.RequestLogging, mw.SizeLimit)

	r.Handle("/render", mw.HMACAuth(http.HandlerFunc(s.HandleRender))).Methods("POST")
	r.HandleFunc("/replay/{battle_id}", s.HandleReplay).Methods("GET")
	r.HandleFunc("/healthz", api.HealthCheck).Methods("GET")
	r.Handle("/readyz", api.ReadinessCheck(s.db)).Methods("GET")

	return r
}
