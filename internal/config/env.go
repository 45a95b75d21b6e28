// Package config loads the agent's environment configuration.
package config

import (
	"fmt"
	"log/slog"

	"github.com/kelseyhightower/envconfig"
)

const namespace = "DEEPAGENT"

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort string `envconfig:"HTTP_PORT" default:"8000"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	PIDFile  string `envconfig:"PID_FILE" default:".deepagent/server.pid"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".deepagent/data"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"deepagent/"`
	S3Region string `envconfig:"S3_REGION" default:"us-east-1"`
}

type AgentEnv struct {
	// Engine selects the reasoning backend: "model" drives the configured
	// chat model directly, "claudecode" delegates to the Claude Code CLI.
	Engine          string `envconfig:"ENGINE" default:"model"`
	ModelProvider   string `envconfig:"MODEL_PROVIDER" default:"zhipu"`
	ModelConfigPath string `envconfig:"MODEL_CONFIG" default:"config/models.yaml"`
	MCPConfigPath   string `envconfig:"MCP_CONFIG" default:"config/mcp.yaml"`
	SkillConfigPath string `envconfig:"SKILL_CONFIG" default:"config/skills.yaml"`
	WorkspaceRoot   string `envconfig:"WORKSPACE_ROOT" default:"."`
	MaxConcurrency  int    `envconfig:"MAX_CONCURRENCY" default:"4"`
	MaxSteps        int    `envconfig:"MAX_STEPS" default:"25"`
	FrontendDist    string `envconfig:"FRONTEND_DIST" default:"frontend/dist"`
	CORSOrigins     string `envconfig:"CORS_ORIGINS" default:"http://localhost:5173"`
}

type Env struct {
	BaseEnv
	StorageEnv
	AgentEnv
}

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	return &env, nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelInfo
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
