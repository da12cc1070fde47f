package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/quizbank/importer/internal/db"

	"github.com/spf13/viper"
)

// Field declares one expected payload field for schema validation.
type Field struct {
	Type     string `mapstructure:"type"`
	Required bool   `mapstructure:"required"`
}

// Import groups the tunables of the import pipeline.
type Import struct {
	// ChunkSize bounds how many records are persisted per chunk.
	ChunkSize int
	// ChunkPause is the backpressure yield between chunks.
	ChunkPause time.Duration
	// RecordTimeout bounds any single store write so an unreachable store
	// surfaces as a per-record failure instead of a stalled batch.
	RecordTimeout time.Duration
	// ErrorWindow is how many trailing errors a progress snapshot carries.
	ErrorWindow int
	// Valid classification ranges. Out-of-range rows are hard errors.
	SubjectMin, SubjectMax int
	TopicMin, TopicMax     int
	// Schema optionally constrains payload fields beyond the base checks.
	// Empty means base checks only.
	Schema map[string]Field
}

// Server groups HTTP server settings.
type Server struct {
	Addr           string
	AllowedOrigins []string
}

// Config is the full application configuration.
type Config struct {
	Database db.Config
	Server   Server
	Import   Import
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database: db.DefaultConfig(),
		Server: Server{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Import: Import{
			ChunkSize:     50,
			ChunkPause:    100 * time.Millisecond,
			RecordTimeout: 10 * time.Second,
			ErrorWindow:   20,
			SubjectMin:    1,
			SubjectMax:    99,
			TopicMin:      1,
			TopicMax:      999,
		},
	}
}

// Load reads config.yaml from configPath, allowing environment overrides with
// the QBANK prefix. A missing config file is not an error; defaults apply.
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("QBANK")

	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("server.addr")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}

	if v.IsSet("server.addr") {
		cfg.Server.Addr = v.GetString("server.addr")
	}
	if v.IsSet("server.allowed_origins") {
		cfg.Server.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	}

	if v.IsSet("import.chunk_size") {
		cfg.Import.ChunkSize = v.GetInt("import.chunk_size")
	}
	if v.IsSet("import.chunk_pause") {
		cfg.Import.ChunkPause = v.GetDuration("import.chunk_pause")
	}
	if v.IsSet("import.record_timeout") {
		cfg.Import.RecordTimeout = v.GetDuration("import.record_timeout")
	}
	if v.IsSet("import.error_window") {
		cfg.Import.ErrorWindow = v.GetInt("import.error_window")
	}
	if v.IsSet("import.subject_min") {
		cfg.Import.SubjectMin = v.GetInt("import.subject_min")
	}
	if v.IsSet("import.subject_max") {
		cfg.Import.SubjectMax = v.GetInt("import.subject_max")
	}
	if v.IsSet("import.topic_min") {
		cfg.Import.TopicMin = v.GetInt("import.topic_min")
	}
	if v.IsSet("import.topic_max") {
		cfg.Import.TopicMax = v.GetInt("import.topic_max")
	}
	if v.IsSet("import.schema") {
		if err := v.UnmarshalKey("import.schema", &cfg.Import.Schema); err != nil {
			return cfg, fmt.Errorf("failed to parse import schema: %w", err)
		}
	}

	return cfg, nil
}
