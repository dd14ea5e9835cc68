package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dcastano/inspectord/internal/detect"
	"github.com/dcastano/inspectord/internal/domain"
	"github.com/dcastano/inspectord/internal/inspection"
)

// RegisterRoutes registers the inspection endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/inspection", func(r chi.Router) {
		r.Post("/analyze", h.Analyze)
		r.Post("/finalize", h.Finalize)
		r.Get("/result/{sessionKey}", h.Result)
		r.Post("/note", h.AddNote)
		r.Get("/session/{sessionKey}", h.SessionSummary)
	})
	r.Route("/admin", func(r chi.Router) {
		r.Post("/reload-rules", h.ReloadRules)
		r.Post("/seed", h.Seed)
	})
	r.Get("/health/ready", h.Ready)
}

// Analyze accepts one multipart image upload and runs the analysis
// pipeline. Form fields: session_key (required), image (required file),
// plate, photo_slot, lat/lon (browser geolocation), conf_damage/conf_parts
// (confidence overrides).
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxImageBytes()+1<<20)
	if err := r.ParseMultipartForm(h.cfg.MaxImageBytes()); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "image exceeds the size limit")
			return
		}
		Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	sessionKey := strings.TrimSpace(r.FormValue("session_key"))
	if sessionKey == "" {
		Error(w, http.StatusBadRequest, "session_key is required")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		Error(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			slog.Warn("Failed to close upload", "error", closeErr)
		}
	}()

	img, err := io.ReadAll(io.LimitReader(file, h.cfg.MaxImageBytes()+1))
	if err != nil {
		Error(w, http.StatusBadRequest, "failed to read image")
		return
	}
	if int64(len(img)) > h.cfg.MaxImageBytes() {
		Error(w, http.StatusRequestEntityTooLarge, "image exceeds the size limit")
		return
	}
	if len(img) == 0 {
		Error(w, http.StatusBadRequest, "image file is empty")
		return
	}

	req := &inspection.AnalyzeRequest{
		SessionKey: sessionKey,
		Plate:      r.FormValue("plate"),
		PhotoSlot:  r.FormValue("photo_slot"),
		Image:      img,
		BrowserGeo: parseBrowserGeo(r.FormValue("lat"), r.FormValue("lon")),
		Note:       strings.TrimSpace(r.FormValue("note")),
		ConfDamage: parseFloatField(r.FormValue("conf_damage")),
		ConfParts:  parseFloatField(r.FormValue("conf_parts")),
	}

	resp, err := h.analyzer.Analyze(r.Context(), req)
	if err != nil {
		if errors.Is(err, detect.ErrBadImage) {
			Error(w, http.StatusBadRequest, "image cannot be decoded")
			return
		}
		slog.Error("Analysis failed", "session_key", sessionKey, "error", err)
		Error(w, http.StatusInternalServerError, "analysis failed")
		return
	}
	JSON(w, http.StatusOK, resp)
}

type finalizeRequest struct {
	SessionKey string `json:"session_key"`
	Plate      string `json:"plate"`
	// Clear defaults to true: the session working state is deleted once the
	// record is persisted unless the caller opts out.
	Clear *bool `json:"clear"`
}

// Finalize aggregates the session into an immutable inspection record.
func (h *Handler) Finalize(w http.ResponseWriter, r *http.Request) {
	var req finalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.SessionKey) == "" {
		Error(w, http.StatusBadRequest, "session_key is required")
		return
	}
	clear := req.Clear == nil || *req.Clear

	rec, err := h.final.Finalize(r.Context(), req.SessionKey, req.Plate, clear)
	if err != nil {
		if errors.Is(err, inspection.ErrEmptySession) {
			Error(w, http.StatusBadRequest, "EMPTY_SESSION")
			return
		}
		slog.Error("Finalize failed", "session_key", req.SessionKey, "error", err)
		Error(w, http.StatusInternalServerError, "finalize failed")
		return
	}
	JSON(w, http.StatusOK, rec)
}

// Result returns the persisted inspection record for a session.
func (h *Handler) Result(w http.ResponseWriter, r *http.Request) {
	sessionKey := chi.URLParam(r, "sessionKey")

	rec, err := h.repo.GetInspection(r.Context(), sessionKey)
	if err != nil {
		slog.Error("Result lookup failed", "session_key", sessionKey, "error", err)
		Error(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if rec == nil {
		Error(w, http.StatusNotFound, "no inspection for session")
		return
	}
	JSON(w, http.StatusOK, rec)
}

type noteRequest struct {
	SessionKey string `json:"session_key"`
	Note       string `json:"note"`
}

// AddNote attaches a free-text note to the session.
func (h *Handler) AddNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.SessionKey) == "" || strings.TrimSpace(req.Note) == "" {
		Error(w, http.StatusBadRequest, "session_key and note are required")
		return
	}

	if err := h.repo.EnsureSession(r.Context(), req.SessionKey); err != nil {
		slog.Error("Ensure session failed", "session_key", req.SessionKey, "error", err)
		Error(w, http.StatusInternalServerError, "failed to store note")
		return
	}
	if err := h.repo.AddNote(r.Context(), req.SessionKey, req.Note); err != nil {
		slog.Error("Add note failed", "session_key", req.SessionKey, "error", err)
		Error(w, http.StatusInternalServerError, "failed to store note")
		return
	}
	JSON(w, http.StatusCreated, map[string]string{"status": "stored"})
}

// SessionSummary returns the accumulated state of a session without
// finalizing it.
func (h *Handler) SessionSummary(w http.ResponseWriter, r *http.Request) {
	sessionKey := chi.URLParam(r, "sessionKey")

	sess, err := h.repo.GetSession(r.Context(), sessionKey)
	if err != nil {
		slog.Error("Session lookup failed", "session_key", sessionKey, "error", err)
		Error(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if sess == nil {
		Error(w, http.StatusNotFound, "session not found")
		return
	}

	count, err := h.repo.CountImages(r.Context(), sessionKey)
	if err != nil {
		Error(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	fraudFlags, err := h.repo.ListFlags(r.Context(), sessionKey, domain.FlagFraud)
	if err != nil {
		Error(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	reviewFlags, err := h.repo.ListFlags(r.Context(), sessionKey, domain.FlagReview)
	if err != nil {
		Error(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	notes, err := h.repo.ListNotes(r.Context(), sessionKey)
	if err != nil {
		Error(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"session":      sess,
		"images":       count,
		"fraud_flags":  fraudFlags,
		"review_flags": reviewFlags,
		"notes":        notes,
	})
}

// ReloadRules re-reads the rules file and swaps the cached set.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	if err := h.rules.Reload(); err != nil {
		slog.Error("Rules reload failed", "error", err)
		Error(w, http.StatusInternalServerError, "reload failed")
		return
	}
	fraud, review := h.rules.Counts()
	JSON(w, http.StatusOK, map[string]int{"fraud_rules": fraud, "review_rules": review})
}

// Seed populates the registry with simulated vehicles and drivers. Counts
// come from the vehicles/drivers query parameters.
func (h *Handler) Seed(w http.ResponseWriter, r *http.Request) {
	vehicles := parseIntQuery(r.URL.Query().Get("vehicles"))
	drivers := parseIntQuery(r.URL.Query().Get("drivers"))
	if vehicles <= 0 && drivers <= 0 {
		Error(w, http.StatusBadRequest, "nothing to seed")
		return
	}

	if vehicles > 0 {
		if err := h.registry.SeedVehicles(r.Context(), vehicles); err != nil {
			slog.Error("Vehicle seeding failed", "error", err)
			Error(w, http.StatusInternalServerError, "seeding failed")
			return
		}
	}
	if drivers > 0 {
		if err := h.registry.SeedDrivers(r.Context(), drivers); err != nil {
			slog.Error("Driver seeding failed", "error", err)
			Error(w, http.StatusInternalServerError, "seeding failed")
			return
		}
	}
	JSON(w, http.StatusOK, map[string]int{"vehicles": vehicles, "drivers": drivers})
}

// Ready checks database connectivity.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Ping(r.Context()); err != nil {
		Error(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func parseBrowserGeo(latRaw, lonRaw string) *domain.GeoPoint {
	if latRaw == "" || lonRaw == "" {
		return nil
	}
	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil {
		return nil
	}
	lon, err := strconv.ParseFloat(lonRaw, 64)
	if err != nil {
		return nil
	}
	return &domain.GeoPoint{Lat: lat, Lon: lon}
}

func parseFloatField(raw string) float64 {
	if raw == "" {
		return 0
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return f
}

func parseIntQuery(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
