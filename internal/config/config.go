// Package config loads umlchat settings from the environment and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned by Validate when a setting has an unsupported value.
var ErrInvalidConfig = errors.New("invalid config")

// Provider identifies the text-generation backend.
type Provider string

const (
	ProviderGemini    Provider = "gemini"
	ProviderOllama    Provider = "ollama"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderBedrock   Provider = "bedrock"
)

// Renderer identifies how PlantUML source is turned into an image.
const (
	RendererJar    = "jar"
	RendererServer = "server"
)

// defaultModels holds the model used when UMLCHAT_MODEL is unset.
var defaultModels = map[Provider]string{
	ProviderGemini:    "gemini-1.5-flash",
	ProviderOllama:    "llama3.2",
	ProviderOpenAI:    "gpt-4o-mini",
	ProviderAnthropic: "claude-3-5-haiku-latest",
	ProviderBedrock:   "anthropic.claude-3-haiku-20240307-v1:0",
}

// Config holds all configuration values.
type Config struct {
	// Completion backend
	Provider        Provider `yaml:"provider"`
	Model           string   `yaml:"model"`
	GeminiAPIKey    string   `yaml:"-"`
	OpenAIAPIKey    string   `yaml:"-"`
	AnthropicAPIKey string   `yaml:"-"`
	AWSRegion       string   `yaml:"aws_region"`

	// Ollama
	OllamaHost    string        `yaml:"ollama_host"`
	OllamaTimeout time.Duration `yaml:"ollama_timeout"`

	// Rendering
	Renderer       string `yaml:"renderer"`
	JavaCommand    string `yaml:"java"`
	PlantUMLJar    string `yaml:"plantuml_jar"`
	PlantUMLServer string `yaml:"plantuml_server"`
	Format         string `yaml:"format"`
	WorkDir        string `yaml:"workdir"`

	// Sanitizer
	StripBraces bool `yaml:"strip_braces"`

	// Logging
	LogFile  string     `yaml:"log_file"`
	LogLevel slog.Level `yaml:"-"`

	// Web server
	ServerPort string `yaml:"server_port"`
}

// Load reads configuration from environment variables.
// If UMLCHAT_CONFIG names a YAML file, its values are used as defaults
// and environment variables still take precedence.
func Load() Config {
	base := defaults()
	if path := os.Getenv("UMLCHAT_CONFIG"); path != "" {
		if err := loadFile(path, &base); err != nil {
			slog.Warn("ignoring config file", "path", path, "error", err)
		}
	}

	provider := Provider(strings.ToLower(getEnv("UMLCHAT_PROVIDER", string(base.Provider))))
	model := getEnv("UMLCHAT_MODEL", base.Model)
	if model == "" {
		model = defaultModels[provider]
	}

	return Config{
		Provider:        provider,
		Model:           model,
		GeminiAPIKey:    os.Getenv("GEMINI_API"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		AWSRegion:       getEnv("AWS_REGION", base.AWSRegion),

		OllamaHost:    getEnv("OLLAMA_HOST", base.OllamaHost),
		OllamaTimeout: parseDuration(os.Getenv("UMLCHAT_OLLAMA_TIMEOUT"), base.OllamaTimeout),

		Renderer:       strings.ToLower(getEnv("UMLCHAT_RENDERER", base.Renderer)),
		JavaCommand:    getEnv("UMLCHAT_JAVA", base.JavaCommand),
		PlantUMLJar:    getEnv("UMLCHAT_PLANTUML_JAR", base.PlantUMLJar),
		PlantUMLServer: getEnv("UMLCHAT_PLANTUML_SERVER", base.PlantUMLServer),
		Format:         strings.ToLower(getEnv("UMLCHAT_FORMAT", base.Format)),
		WorkDir:        getEnv("UMLCHAT_WORKDIR", base.WorkDir),

		StripBraces: parseBool(os.Getenv("UMLCHAT_STRIP_BRACES"), base.StripBraces),

		LogFile:  getEnv("UMLCHAT_LOG_FILE", base.LogFile),
		LogLevel: parseLogLevel(getEnv("UMLCHAT_LOG_LEVEL", "INFO")),

		ServerPort: getEnv("UMLCHAT_SERVER_PORT", base.ServerPort),
	}
}

// Validate checks enumerated settings.
func (c Config) Validate() error {
	if _, ok := defaultModels[c.Provider]; !ok {
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, c.Provider)
	}
	if c.Renderer != RendererJar && c.Renderer != RendererServer {
		return fmt.Errorf("%w: unknown renderer %q", ErrInvalidConfig, c.Renderer)
	}
	if c.Format != "svg" && c.Format != "png" {
		return fmt.Errorf("%w: unsupported format %q", ErrInvalidConfig, c.Format)
	}
	if c.OllamaTimeout <= 0 {
		return fmt.Errorf("%w: ollama timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

func defaults() Config {
	return Config{
		Provider:       ProviderGemini,
		AWSRegion:      "us-east-1",
		OllamaHost:     "http://localhost:11434",
		OllamaTimeout:  30 * time.Second,
		Renderer:       RendererJar,
		JavaCommand:    "java",
		PlantUMLJar:    "plantuml.jar",
		PlantUMLServer: "http://localhost:8080",
		Format:         "svg",
		WorkDir:        ".",
		StripBraces:    true,
		LogFile:        "/tmp/umlchat.log",
		ServerPort:     "8485",
	}
}

// loadFile overlays the YAML file at path onto cfg. Keys absent from the
// file keep their current values.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func parseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

func parseBool(s string, defaultVal bool) bool {
	switch strings.ToLower(s) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultVal
	}
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
