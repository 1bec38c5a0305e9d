package ai

import "strings"

type TaskKind string

const TaskClustering TaskKind = "clustering"

type ModelProfile struct {
	PrimaryModel    string
	FallbackModel   string
	Temperature     float64
	MaxOutputTokens int
}

type ModelRouterConfig struct {
	ClusteringPrimary  string
	ClusteringFallback string
}

type ModelRouter struct {
	config ModelRouterConfig
}

func NewModelRouter(config ModelRouterConfig) *ModelRouter {
	if strings.TrimSpace(config.ClusteringPrimary) == "" {
		config.ClusteringPrimary = "gpt-4o-mini"
	}
	return &ModelRouter{config: config}
}

func (r *ModelRouter) Select(task TaskKind) ModelProfile {
	switch task {
	case TaskClustering:
		return ModelProfile{
			PrimaryModel:    r.config.ClusteringPrimary,
			FallbackModel:   strings.TrimSpace(r.config.ClusteringFallback),
			Temperature:     0.2,
			MaxOutputTokens: 2000,
		}
	default:
		return ModelProfile{
			PrimaryModel:    r.config.ClusteringPrimary,
			Temperature:     0.2,
			MaxOutputTokens: 1000,
		}
	}
}
