package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/mreyes/tablestakes/internal/auth"
	"github.com/mreyes/tablestakes/internal/clock"
	"github.com/mreyes/tablestakes/internal/models"
	"github.com/mreyes/tablestakes/internal/structure"
	"github.com/rs/zerolog/log"
)

// ClockEngine defines what the gateway needs from the clock engine.
type ClockEngine interface {
	CreateClock(ctx context.Context, tournamentID uuid.UUID, actor *uuid.UUID) (*models.TournamentClock, error)
	StartClock(ctx context.Context, tournamentID uuid.UUID, actor *uuid.UUID) (*models.TournamentClock, error)
	PauseClock(ctx context.Context, tournamentID uuid.UUID, actor *uuid.UUID) (*models.TournamentClock, error)
	ResumeClock(ctx context.Context, tournamentID uuid.UUID, actor *uuid.UUID) (*models.TournamentClock, error)
	AdvanceLevel(ctx context.Context, tournamentID uuid.UUID, actor *uuid.UUID, auto bool) (*models.TournamentClock, error)
	RevertLevel(ctx context.Context, tournamentID uuid.UUID, actor *uuid.UUID) (*models.TournamentClock, error)
	SetAutoAdvance(ctx context.Context, tournamentID uuid.UUID, actor *uuid.UUID, enabled bool) (*models.TournamentClock, error)
	GetClock(ctx context.Context, tournamentID uuid.UUID) (*models.TournamentClock, error)
	GetLevels(ctx context.Context, tournamentID uuid.UUID) ([]models.StructureLevel, error)
	Snapshot(ctx context.Context, tournamentID uuid.UUID) (*clock.Snapshot, error)
}

// StructureWriter defines what the gateway needs for structure management.
type StructureWriter interface {
	ReplaceLevels(ctx context.Context, tournamentID uuid.UUID, inputs []structure.LevelInput) ([]models.StructureLevel, error)
}

// ManagerCheck authorizes structure writes; clock transitions authorize
// inside the engine.
type ManagerCheck interface {
	RequireManager(ctx context.Context, tournamentID, userID uuid.UUID) (*models.Manager, error)
}

// Handler exposes the clock engine over JSON HTTP. The acting user comes
// from the X-Actor-ID header; authenticating that header is the API
// gateway's job, not this service's.
type Handler struct {
	engine     ClockEngine
	structures StructureWriter
	managers   ManagerCheck
	stream     *StreamHandler
}

// NewHandler creates a gateway handler.
func NewHandler(engine ClockEngine, structures StructureWriter, managers ManagerCheck, stream *StreamHandler) *Handler {
	return &Handler{
		engine:     engine,
		structures: structures,
		managers:   managers,
		stream:     stream,
	}
}

// Register mounts all routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/tournaments/{id}/clock", h.handleCreateClock)
	mux.HandleFunc("POST /api/tournaments/{id}/clock/start", h.transition(ClockEngine.StartClock))
	mux.HandleFunc("POST /api/tournaments/{id}/clock/pause", h.transition(ClockEngine.PauseClock))
	mux.HandleFunc("POST /api/tournaments/{id}/clock/resume", h.transition(ClockEngine.ResumeClock))
	mux.HandleFunc("POST /api/tournaments/{id}/clock/advance", h.handleAdvance)
	mux.HandleFunc("POST /api/tournaments/{id}/clock/revert", h.transition(ClockEngine.RevertLevel))
	mux.HandleFunc("PUT /api/tournaments/{id}/clock/auto-advance", h.handleSetAutoAdvance)
	mux.HandleFunc("GET /api/tournaments/{id}/clock", h.handleGetClock)
	mux.HandleFunc("GET /api/tournaments/{id}/clock/ws", h.stream.HandleClockStream)
	mux.HandleFunc("GET /api/tournaments/{id}/structure", h.handleGetStructure)
	mux.HandleFunc("PUT /api/tournaments/{id}/structure", h.handleReplaceStructure)
}

type transitionFunc func(ClockEngine, context.Context, uuid.UUID, *uuid.UUID) (*models.TournamentClock, error)

// transition adapts the engine's uniform mutation signature to a handler.
func (h *Handler) transition(fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tournamentID, actor, ok := h.mutationParams(w, r)
		if !ok {
			return
		}

		c, err := fn(h.engine, r.Context(), tournamentID, actor)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

func (h *Handler) handleCreateClock(w http.ResponseWriter, r *http.Request) {
	tournamentID, actor, ok := h.mutationParams(w, r)
	if !ok {
		return
	}

	c, err := h.engine.CreateClock(r.Context(), tournamentID, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) handleAdvance(w http.ResponseWriter, r *http.Request) {
	tournamentID, actor, ok := h.mutationParams(w, r)
	if !ok {
		return
	}

	c, err := h.engine.AdvanceLevel(r.Context(), tournamentID, actor, false)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) handleSetAutoAdvance(w http.ResponseWriter, r *http.Request) {
	tournamentID, actor, ok := h.mutationParams(w, r)
	if !ok {
		return
	}

	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	c, err := h.engine.SetAutoAdvance(r.Context(), tournamentID, actor, body.Enabled)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) handleGetClock(w http.ResponseWriter, r *http.Request) {
	tournamentID, ok := tournamentIDParam(w, r)
	if !ok {
		return
	}

	snap, err := h.engine.Snapshot(r.Context(), tournamentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) handleGetStructure(w http.ResponseWriter, r *http.Request) {
	tournamentID, ok := tournamentIDParam(w, r)
	if !ok {
		return
	}

	levels, err := h.engine.GetLevels(r.Context(), tournamentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, levels)
}

func (h *Handler) handleReplaceStructure(w http.ResponseWriter, r *http.Request) {
	tournamentID, actor, ok := h.mutationParams(w, r)
	if !ok {
		return
	}

	if _, err := h.managers.RequireManager(r.Context(), tournamentID, *actor); err != nil {
		writeError(w, err)
		return
	}

	var inputs []structure.LevelInput
	if err := json.NewDecoder(r.Body).Decode(&inputs); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	levels, err := h.structures.ReplaceLevels(r.Context(), tournamentID, inputs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, levels)
}

// mutationParams extracts the tournament ID and the required acting user.
func (h *Handler) mutationParams(w http.ResponseWriter, r *http.Request) (uuid.UUID, *uuid.UUID, bool) {
	tournamentID, ok := tournamentIDParam(w, r)
	if !ok {
		return uuid.Nil, nil, false
	}

	actorHeader := r.Header.Get("X-Actor-ID")
	if actorHeader == "" {
		http.Error(w, "X-Actor-ID header is required", http.StatusUnauthorized)
		return uuid.Nil, nil, false
	}
	actor, err := uuid.Parse(actorHeader)
	if err != nil {
		http.Error(w, "invalid X-Actor-ID header", http.StatusBadRequest)
		return uuid.Nil, nil, false
	}
	return tournamentID, &actor, true
}

func tournamentIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid tournament ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// writeError maps engine errors onto HTTP statuses. Lost store races and
// invalid transitions are 409s so clients know to refetch and retry.
func writeError(w http.ResponseWriter, err error) {
	var status int
	var kind string

	switch {
	case errors.Is(err, clock.ErrClockNotFound), errors.Is(err, structure.ErrLevelNotFound):
		status, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, auth.ErrNotManager):
		status, kind = http.StatusForbidden, "not_authorized"
	case errors.Is(err, clock.ErrCannotRevert):
		status, kind = http.StatusUnprocessableEntity, "cannot_revert"
	case errors.Is(err, clock.ErrNoNextLevel):
		status, kind = http.StatusUnprocessableEntity, "no_next_level"
	case errors.Is(err, structure.ErrInvalidStructure):
		status, kind = http.StatusUnprocessableEntity, "invalid_structure"
	case errors.Is(err, clock.ErrInvalidTransition):
		status, kind = http.StatusConflict, "invalid_transition"
	case errors.Is(err, clock.ErrClockConflict):
		status, kind = http.StatusConflict, "conflict"
	default:
		log.Error().Err(err).Msg("internal error in clock gateway")
		status, kind = http.StatusInternalServerError, "internal"
	}

	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
}
