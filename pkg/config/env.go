package config

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables consumed by the runtime and its collaborators.
const (
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"

	EnvToolManifestSecret = "AGENT_SDK_TOOL_MANIFEST_SECRET"
)

// LoadEnv loads a .env file if present. A missing file is not an error;
// anything else is logged and ignored so a malformed .env never blocks
// startup.
func LoadEnv(path string) {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return
	}
	if err := godotenv.Load(path); err != nil {
		slog.Warn("Failed to load env file", "path", path, "error", err)
	}
}
