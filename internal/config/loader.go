package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/vetfieldhq/vetfield/internal/db"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Address string
}

// MongoConfig holds the document-store settings used when the storage
// driver is "mongo".
type MongoConfig struct {
	URI      string
	Database string
}

// ImportConfig tunes the bulk import pipeline.
type ImportConfig struct {
	// Strict rejects rows that would otherwise be repaired with defaults.
	Strict bool
	// ClientMatch is "any" (match on any identity or locality field) or
	// "identity" (national ID only).
	ClientMatch string
	// Phone normalization profile.
	PhoneCountryCode  string
	PhoneMobilePrefix string
	PhoneTrunkPrefix  string
	// WebhookSource labels batches arriving through the webhook route.
	WebhookSource string
}

// ExportConfig tunes the snapshot export workers.
type ExportConfig struct {
	Directory string
	PageSize  int
}

// Config is the full service configuration.
type Config struct {
	Server ServerConfig
	// StorageDriver selects the persistence backend: "postgres" or "mongo".
	StorageDriver  string
	Database       db.Config
	Mongo          MongoConfig
	MigrationsPath string
	Import         ImportConfig
	Export         ExportConfig
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() Config {
	return Config{
		Server:         ServerConfig{Address: ":8080"},
		StorageDriver:  "postgres",
		Database:       db.DefaultConfig(),
		Mongo:          MongoConfig{URI: "mongodb://localhost:27017", Database: "vetfield"},
		MigrationsPath: "migrations",
		Import: ImportConfig{
			Strict:            false,
			ClientMatch:       "any",
			PhoneCountryCode:  "966",
			PhoneMobilePrefix: "5",
			PhoneTrunkPrefix:  "0",
			WebhookSource:     "webhook",
		},
		Export: ExportConfig{Directory: "exports", PageSize: 1000},
	}
}

// Load reads config.yaml from configPath (when present) and applies
// VETFIELD_* environment overrides on top of the defaults.
func Load(configPath string) (Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("VETFIELD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	keys := []string{
		"server.address",
		"storage.driver",
		"database.host",
		"database.port",
		"database.user",
		"database.password",
		"database.dbname",
		"database.sslmode",
		"mongo.uri",
		"mongo.database",
		"migrations.path",
		"import.strict",
		"import.client_match",
		"import.phone_country_code",
		"import.phone_mobile_prefix",
		"import.phone_trunk_prefix",
		"import.webhook_source",
		"export.directory",
		"export.page_size",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found? Just log it, use defaults + env
		fmt.Println("No config.yaml found, using defaults and env vars")
	} else {
		fmt.Println("Loaded config.yaml")
	}

	if v.IsSet("server.address") {
		cfg.Server.Address = v.GetString("server.address")
	}
	if v.IsSet("storage.driver") {
		cfg.StorageDriver = strings.ToLower(strings.TrimSpace(v.GetString("storage.driver")))
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
	if v.IsSet("mongo.uri") {
		cfg.Mongo.URI = v.GetString("mongo.uri")
	}
	if v.IsSet("mongo.database") {
		cfg.Mongo.Database = v.GetString("mongo.database")
	}
	if v.IsSet("migrations.path") {
		cfg.MigrationsPath = v.GetString("migrations.path")
	}
	if v.IsSet("import.strict") {
		cfg.Import.Strict = v.GetBool("import.strict")
	}
	if v.IsSet("import.client_match") {
		cfg.Import.ClientMatch = strings.ToLower(strings.TrimSpace(v.GetString("import.client_match")))
	}
	if v.IsSet("import.phone_country_code") {
		cfg.Import.PhoneCountryCode = v.GetString("import.phone_country_code")
	}
	if v.IsSet("import.phone_mobile_prefix") {
		cfg.Import.PhoneMobilePrefix = v.GetString("import.phone_mobile_prefix")
	}
	if v.IsSet("import.phone_trunk_prefix") {
		cfg.Import.PhoneTrunkPrefix = v.GetString("import.phone_trunk_prefix")
	}
	if v.IsSet("import.webhook_source") {
		cfg.Import.WebhookSource = v.GetString("import.webhook_source")
	}
	if v.IsSet("export.directory") {
		cfg.Export.Directory = v.GetString("export.directory")
	}
	if v.IsSet("export.page_size") {
		cfg.Export.PageSize = v.GetInt("export.page_size")
	}

	switch cfg.StorageDriver {
	case "postgres", "mongo":
	default:
		return Config{}, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	return cfg, nil
}
