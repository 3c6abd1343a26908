package common

import (
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config is the process configuration, read from the environment
type Config struct {
	Port               string `validate:"required"`
	SecretKey          string
	UploadDir          string `validate:"required"`
	TemplateLibraryDir string `validate:"required"`
	DefaultTemplate    string `validate:"required"`
	TemplateConfigFile string

	OpenAIKey       string
	AnthropicKey    string
	GeminiKey       string
	DefaultProvider string `validate:"omitempty,oneof=openai anthropic gemini"`
	OpenAIModel     string
	AnthropicModel  string
	GeminiModel     string
	MaxPromptTokens int     `validate:"gte=1000"`
	RequestsPerMin  float64 `validate:"gt=0"`

	UseDummyData  bool
	DummyDataFile string `validate:"required"`

	MaxContentMB int64 `validate:"gte=1"`
	MaxFigureMB  int64 `validate:"gte=1"`

	AutoCleanupUploads bool
	KeepFinalOutput    bool

	YOLOModelPath string
	AutoFigures   bool

	SMTPHost     string
	SMTPPort     int `validate:"gte=0,lte=65535"`
	SMTPUsername string
	SMTPPassword string
	AdminEmail   string `validate:"omitempty,email"`

	OutputBucket string
	AWSRegion    string

	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=console json"`
}

// LoadEnv loads a .env file into the process environment. Existing
// variables win over the file.
func LoadEnv(filename string) error {
	return godotenv.Load(filename)
}

// LoadConfig reads the environment and validates the result
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port:               getEnv("PORT", "5000"),
		SecretKey:          getEnv("SECRET_KEY", "your-secret-key-here"),
		UploadDir:          getEnv("UPLOAD_DIR", "uploads"),
		TemplateLibraryDir: getEnv("TEMPLATE_LIBRARY_DIR", "template_library"),
		DefaultTemplate:    getEnv("DEFAULT_TEMPLATE", "default_template.pptx"),
		TemplateConfigFile: getEnv("TEMPLATE_CONFIG_FILE", "template_configs.yaml"),

		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
		AnthropicKey:    os.Getenv("ANTHROPIC_API_KEY"),
		GeminiKey:       os.Getenv("GEMINI_API_KEY"),
		DefaultProvider: strings.ToLower(getEnv("DEFAULT_AI_PROVIDER", "openai")),
		OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o"),
		AnthropicModel:  getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-5"),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		MaxPromptTokens: getEnvInt("MAX_PROMPT_TOKENS", 8000),
		RequestsPerMin:  getEnvFloat("AI_REQUESTS_PER_MINUTE", 30),

		UseDummyData:  getEnvBool("USE_DUMMY_DATA", false),
		DummyDataFile: getEnv("DUMMY_DATA_FILE", "dummy_api_response.json"),

		MaxContentMB: int64(getEnvInt("MAX_CONTENT_MB", 500)),
		MaxFigureMB:  int64(getEnvInt("MAX_FIGURE_MB", 50)),

		AutoCleanupUploads: getEnvBool("AUTO_CLEANUP_UPLOADS", true),
		KeepFinalOutput:    getEnvBool("KEEP_FINAL_OUTPUT", false),

		YOLOModelPath: getEnv("YOLO_MODEL_PATH", "yolov8n-doclaynet.onnx"),
		AutoFigures:   getEnvBool("AUTO_FIGURES", false),

		SMTPHost:     getEnv("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUsername: firstNonEmpty(os.Getenv("SMTP_USERNAME"), os.Getenv("GMAIL_EMAIL")),
		SMTPPassword: firstNonEmpty(os.Getenv("SMTP_PASSWORD"), os.Getenv("GMAIL_APP_PASSWORD")),
		AdminEmail:   os.Getenv("ADMIN_EMAIL"),

		OutputBucket: os.Getenv("OUTPUT_BUCKET"),
		AWSRegion:    getEnv("AWS_REGION", "us-east-1"),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "console")),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, ConfigError("invalid configuration", err)
	}
	return cfg, nil
}

// HasAnyProvider reports whether at least one provider key is set
func (c *Config) HasAnyProvider() bool {
	return c.OpenAIKey != "" || c.AnthropicKey != "" || c.GeminiKey != ""
}

// SMTPConfigured reports whether signup notifications can be sent
func (c *Config) SMTPConfigured() bool {
	return c.SMTPHost != "" && c.SMTPUsername != "" && c.SMTPPassword != "" && c.AdminEmail != ""
}

// MaxContentBytes is the request body limit
func (c *Config) MaxContentBytes() int64 {
	return c.MaxContentMB << 20
}

// MaxFigureBytes is the per-figure limit
func (c *Config) MaxFigureBytes() int64 {
	return c.MaxFigureMB << 20
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		Log.Warn().Str("key", key).Str("value", v).Msg("ignoring non-integer value")
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		Log.Warn().Str("key", key).Str("value", v).Msg("ignoring non-numeric value")
		return def
	}
	return f
}

func getEnvBool(key string, def bool) bool {
	v := strings.ToLower(getEnv(key, ""))
	switch v {
	case "":
		return def
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	Log.Warn().Str("key", key).Str("value", v).Msgf("ignoring non-boolean value, using %t", def)
	return def
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
