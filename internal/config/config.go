package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Intake    IntakeConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	AI        AIConfig
	GitHub    GitHubConfig
	Search    SearchConfig
	Sandbox   SandboxConfig
	Job       JobConfig
	Workspace WorkspaceConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// IntakeConfig holds the shared secret task submitters must present.
type IntakeConfig struct {
	Secret string
}

type JWTConfig struct {
	Secret string
}

type RateLimitConfig struct {
	TasksPerHour int
}

type AIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type GitHubConfig struct {
	Token   string
	Owner   string
	BaseURL string
	Branch  string
}

type SearchConfig struct {
	BaseURL    string
	MaxResults int
}

type SandboxConfig struct {
	Interpreter string
	Timeout     int // seconds
	InstallDeps bool
}

type JobConfig struct {
	Deadline     int // seconds, whole-job wall clock
	SearchBudget int
	ExecBudget   int
}

type WorkspaceConfig struct {
	Root string
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("AI_API_KEY")
	readSecret("GITHUB_TOKEN")
	readSecret("INTAKE_SECRET")
	readSecret("JWT_SECRET")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("intake.secret", "INTAKE_SECRET")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("ratelimit.tasks_per_hour", "RATELIMIT_TASKS_PER_HOUR")
	_ = viper.BindEnv("ai.api_key", "AI_API_KEY")
	_ = viper.BindEnv("ai.base_url", "AI_BASE_URL")
	_ = viper.BindEnv("ai.model", "AI_MODEL")
	_ = viper.BindEnv("github.token", "GITHUB_TOKEN")
	_ = viper.BindEnv("github.owner", "GITHUB_OWNER")
	_ = viper.BindEnv("github.base_url", "GITHUB_BASE_URL")
	_ = viper.BindEnv("github.branch", "GITHUB_BRANCH")
	_ = viper.BindEnv("search.base_url", "SEARCH_BASE_URL")
	_ = viper.BindEnv("search.max_results", "SEARCH_MAX_RESULTS")
	_ = viper.BindEnv("sandbox.interpreter", "SANDBOX_INTERPRETER")
	_ = viper.BindEnv("sandbox.timeout", "SANDBOX_TIMEOUT")
	_ = viper.BindEnv("sandbox.install_deps", "SANDBOX_INSTALL_DEPS")
	_ = viper.BindEnv("job.deadline", "JOB_DEADLINE")
	_ = viper.BindEnv("job.search_budget", "JOB_SEARCH_BUDGET")
	_ = viper.BindEnv("job.exec_budget", "JOB_EXEC_BUDGET")
	_ = viper.BindEnv("workspace.root", "WORKSPACE_ROOT")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("ratelimit.tasks_per_hour", 30)

	// AI defaults (OpenAI-compatible chat completions)
	viper.SetDefault("ai.base_url", "https://api.groq.com/openai/v1")
	viper.SetDefault("ai.model", "llama-3.3-70b-versatile")

	// GitHub defaults
	viper.SetDefault("github.base_url", "https://api.github.com")
	viper.SetDefault("github.branch", "main")

	// Search defaults
	viper.SetDefault("search.base_url", "https://html.duckduckgo.com")
	viper.SetDefault("search.max_results", 8)

	// Sandbox defaults
	viper.SetDefault("sandbox.interpreter", "python3")
	viper.SetDefault("sandbox.timeout", 60)
	viper.SetDefault("sandbox.install_deps", true)

	// Job defaults
	viper.SetDefault("job.deadline", 540) // 9 minutes
	viper.SetDefault("job.search_budget", 1)
	viper.SetDefault("job.exec_budget", 4)

	// Workspace defaults
	viper.SetDefault("workspace.root", "./workspaces")

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Intake: IntakeConfig{
			Secret: viper.GetString("intake.secret"),
		},
		JWT: JWTConfig{
			Secret: viper.GetString("jwt.secret"),
		},
		RateLimit: RateLimitConfig{
			TasksPerHour: viper.GetInt("ratelimit.tasks_per_hour"),
		},
		AI: AIConfig{
			APIKey:  viper.GetString("ai.api_key"),
			BaseURL: viper.GetString("ai.base_url"),
			Model:   viper.GetString("ai.model"),
		},
		GitHub: GitHubConfig{
			Token:   viper.GetString("github.token"),
			Owner:   viper.GetString("github.owner"),
			BaseURL: viper.GetString("github.base_url"),
			Branch:  viper.GetString("github.branch"),
		},
		Search: SearchConfig{
			BaseURL:    viper.GetString("search.base_url"),
			MaxResults: viper.GetInt("search.max_results"),
		},
		Sandbox: SandboxConfig{
			Interpreter: viper.GetString("sandbox.interpreter"),
			Timeout:     viper.GetInt("sandbox.timeout"),
			InstallDeps: viper.GetBool("sandbox.install_deps"),
		},
		Job: JobConfig{
			Deadline:     viper.GetInt("job.deadline"),
			SearchBudget: viper.GetInt("job.search_budget"),
			ExecBudget:   viper.GetInt("job.exec_budget"),
		},
		Workspace: WorkspaceConfig{
			Root: viper.GetString("workspace.root"),
		},
	}

	return cfg, nil
}

// JobDeadline returns the whole-job deadline as a duration.
func (c *Config) JobDeadline() time.Duration {
	return time.Duration(c.Job.Deadline) * time.Second
}

// SandboxTimeout returns the per-execution timeout as a duration.
func (c *Config) SandboxTimeout() time.Duration {
	return time.Duration(c.Sandbox.Timeout) * time.Second
}
