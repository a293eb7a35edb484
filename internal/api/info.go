package api

import (
	"net/http"

	"github.com/seantiz/ripq/internal/model"
)

// Service identity reported by /status and /type.
const (
	Version     = "2.1.0"
	ServiceType = "premium_api"
	EngineName  = "lua.rip v2.0"
)

type healthResponse struct {
	Status string `json:"status"`
}

type globalStatusResponse struct {
	Status  string           `json:"status"`
	Version string           `json:"version"`
	Queue   model.QueueStats `json:"queue"`
}

type typeResponse struct {
	Type   string `json:"type"`
	Engine string `json:"engine"`
}

type featuresResponse struct {
	Presets []string       `json:"presets"`
	Options []string       `json:"options"`
	Limits  featuresLimits `json:"limits"`
}

type featuresLimits struct {
	MaxSizeMB    int64 `json:"max_size_mb"`
	QueueEnabled bool  `json:"queue_enabled"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (s *Server) handleGlobalStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, globalStatusResponse{
		Status:  "online",
		Version: Version,
		Queue:   s.engine.GlobalStatus(),
	})
}

func (s *Server) handleType(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, typeResponse{Type: ServiceType, Engine: EngineName})
}

func (s *Server) handleFeatures(w http.ResponseWriter, r *http.Request) {
	presets := make([]string, 0, len(model.Profiles)+len(model.Presets))
	for _, p := range model.Profiles {
		presets = append(presets, string(p))
	}
	presets = append(presets, model.Presets...)

	options := make([]string, 0, len(model.Features))
	for _, f := range model.Features {
		options = append(options, string(f))
	}

	s.writeJSON(w, http.StatusOK, featuresResponse{
		Presets: presets,
		Options: options,
		Limits: featuresLimits{
			MaxSizeMB:    s.opts.MaxBodyBytes >> 20,
			QueueEnabled: true,
		},
	})
}
