// Package api provides HTTP handlers for the inspection API.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/dcastano/inspectord/internal/bus"
	"github.com/dcastano/inspectord/internal/config"
	"github.com/dcastano/inspectord/internal/inspection"
	"github.com/dcastano/inspectord/internal/registry"
	"github.com/dcastano/inspectord/internal/rules"
	"github.com/dcastano/inspectord/internal/store"
)

// Handler provides common handler dependencies.
type Handler struct {
	repo     store.Repository
	analyzer *inspection.Analyzer
	final    *inspection.Finalizer
	registry *registry.Registry
	rules    *rules.Engine
	bus      *bus.Bus
	cfg      *config.Config
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, analyzer *inspection.Analyzer, final *inspection.Finalizer,
	reg *registry.Registry, engine *rules.Engine, eventBus *bus.Bus, cfg *config.Config) *Handler {
	return &Handler{
		repo:     repo,
		analyzer: analyzer,
		final:    final,
		registry: reg,
		rules:    engine,
		bus:      eventBus,
		cfg:      cfg,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
