package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string
	Env  string

	// DataDir holds the file-backend project tree and the model library.
	DataDir      string
	RegistryPath string

	LLM      LLMConfig
	Workflow WorkflowConfig
	Archive  ArchiveConfig
}

type LLMConfig struct {
	Backend string
	Model   string
	APIKey  string
	// CallTimeout bounds every stage's external call; an exceeded
	// deadline is a transport-class failure, not a pending call.
	CallTimeout time.Duration
}

type WorkflowConfig struct {
	AnalystRetryBudget   int
	AutoChainComposer    bool
	AutoChainAnalystLoop bool
}

type ArchiveConfig struct {
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	port := flag.String("port", ":8997", "server port")
	flag.Parse()

	if envPort := os.Getenv("PORT"); envPort != "" {
		if strings.HasPrefix(envPort, ":") {
			*port = envPort
		} else {
			*port = ":" + envPort
		}
	}

	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = "local"
	}

	dataDir := firstNonEmpty(strings.TrimSpace(os.Getenv("DATA_DIR")), "data")

	return &Config{
		Port:         *port,
		Env:          env,
		DataDir:      dataDir,
		RegistryPath: firstNonEmpty(strings.TrimSpace(os.Getenv("LIBRARY_REGISTRY")), dataDir+"/library_registry.json"),
		LLM: LLMConfig{
			Backend:     strings.TrimSpace(os.Getenv("LLM_BACKEND")),
			Model:       strings.TrimSpace(os.Getenv("LLM_MODEL")),
			APIKey:      strings.TrimSpace(os.Getenv("LLM_API_KEY")),
			CallTimeout: durationEnv("LLM_CALL_TIMEOUT", 120*time.Second),
		},
		Workflow: WorkflowConfig{
			AnalystRetryBudget:   intEnv("ANALYST_RETRY_BUDGET", 2),
			AutoChainComposer:    boolEnv("AUTO_CHAIN_COMPOSER", false),
			AutoChainAnalystLoop: boolEnv("AUTO_CHAIN_ANALYST_LOOP", false),
		},
		Archive: loadArchiveConfig(env),
	}, nil
}

func loadArchiveConfig(env string) ArchiveConfig {
	endpoint := resolveArchiveEndpoint(env)
	return ArchiveConfig{
		Enabled:   endpoint != "",
		Endpoint:  endpoint,
		Region:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARCHIVE_S3_REGION")), "us-east-1"),
		AccessKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ARCHIVE_S3_ACCESS_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_USER"))),
		SecretKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ARCHIVE_S3_SECRET_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_PASSWORD"))),
		Bucket:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARCHIVE_S3_BUCKET")), "bondarchitect-reports"),
		UseSSL:    resolveArchiveUseSSL(env),
	}
}

func resolveArchiveEndpoint(env string) string {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return strings.TrimSpace(os.Getenv("ARCHIVE_MINIO_ENDPOINT"))
	}
	return strings.TrimSpace(os.Getenv("ARCHIVE_S3_ENDPOINT"))
}

func resolveArchiveUseSSL(env string) bool {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return false
	}
	raw := strings.TrimSpace(os.Getenv("ARCHIVE_S3_USE_SSL"))
	if raw == "" {
		return true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return true
	}
	return v
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func intEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func boolEnv(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
