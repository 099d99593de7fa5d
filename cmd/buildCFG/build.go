package buildCFG

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/config"
	"golang.org/x/crypto/bcrypt"

	"iscrizioni/internal/service"
)

type ServerConfig struct {
	Port string
}

type RabbitConfig struct {
	Enabled  bool
	Url      string
	Exchange string
	Queue    string
}

func BuildServerConfig(cfg *config.Config, log *zerolog.Logger) ServerConfig {
	port := getEnv("PORT", cfg.GetString("server.port"))
	if port == "" {
		port = "5002"
	}
	log.Info().Str("port", port).Msg("server configuration loaded")
	return ServerConfig{Port: port}
}

// BuildDatabasePath resolves the SQLite file location. The configured
// data directory is probed for writability; when it is not usable the
// path falls back to the current working directory.
func BuildDatabasePath(cfg *config.Config, log *zerolog.Logger) (string, error) {
	dir := getEnv("DB_DIR", cfg.GetString("database.dir"))
	if dir == "" {
		dir = "/data"
	}
	file := cfg.GetString("database.file")
	if file == "" {
		file = "registrazioni.db"
	}

	if !dirWritable(dir) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("cannot resolve fallback data directory: %w", err)
		}
		log.Warn().Str("dir", dir).Str("fallback", cwd).Msg("data directory not writable, falling back")
		dir = cwd
	}

	return filepath.Join(dir, file), nil
}

func dirWritable(dir string) bool {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false
	}
	probe := filepath.Join(dir, ".test_write")
	if err := os.WriteFile(probe, []byte("test"), 0o644); err != nil {
		return false
	}
	_ = os.Remove(probe)
	return true
}

// BuildAdminConfig reads the admin credentials. They have no defaults:
// startup fails when either is missing. The password is hashed right
// away and only the hash is kept.
func BuildAdminConfig(cfg *config.Config, log *zerolog.Logger) (service.AdminCredentials, error) {
	username := getEnv("ADMIN_USERNAME", cfg.GetString("admin.username"))
	password := getEnv("ADMIN_PASSWORD", "")

	if username == "" {
		return service.AdminCredentials{}, fmt.Errorf("ADMIN_USERNAME is required")
	}
	if password == "" {
		return service.AdminCredentials{}, fmt.Errorf("ADMIN_PASSWORD is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return service.AdminCredentials{}, fmt.Errorf("failed to hash admin password: %w", err)
	}

	log.Info().Str("username", username).Msg("admin user configured")
	return service.AdminCredentials{Username: username, PasswordHash: hash}, nil
}

// BuildSessionSecret reads the cookie-session secret, required at startup.
func BuildSessionSecret(cfg *config.Config) ([]byte, error) {
	secret := getEnv("SESSION_SECRET", cfg.GetString("session.secret"))
	if secret == "" {
		return nil, fmt.Errorf("SESSION_SECRET is required")
	}
	return []byte(secret), nil
}

// BuildProfile returns the configured registration profile.
func BuildProfile(cfg *config.Config) (string, error) {
	profile := getEnv("REGISTRATION_PROFILE", cfg.GetString("registration.profile"))
	if profile == "" {
		profile = service.ProfileSerata
	}
	if profile != service.ProfileAnagrafica && profile != service.ProfileSerata {
		return "", fmt.Errorf("unknown registration profile %q", profile)
	}
	return profile, nil
}

func BuildRabbitConfig(cfg *config.Config, log *zerolog.Logger) (RabbitConfig, error) {
	rc := RabbitConfig{
		Enabled:  cfg.GetBool("rabbit.enabled"),
		Url:      getEnv("RABBIT_URL", cfg.GetString("rabbit.url")),
		Exchange: cfg.GetString("rabbit.exchange"),
		Queue:    cfg.GetString("rabbit.queue"),
	}
	if !rc.Enabled {
		log.Info().Msg("audit publishing disabled")
		return rc, nil
	}
	if rc.Url == "" {
		return rc, fmt.Errorf("rabbit.url is required when audit publishing is enabled")
	}
	if rc.Exchange == "" {
		rc.Exchange = "iscrizioni.audit"
	}
	if rc.Queue == "" {
		rc.Queue = "iscrizioni.audit.log"
	}
	return rc, nil
}

// getEnv mirrors how the deployment has always passed secrets: the
// environment wins over the config file, and stray spaces are stripped.
func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return strings.TrimSpace(fallback)
}
