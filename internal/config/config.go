// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/text/language"

	"github.com/ericfisherdev/tgvault/internal/cipher"
)

// Store backends selectable with TGVAULT_STORE.
const (
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
	BackendFile   = "file"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr     string
	StoreBackend   string
	DBPath         string
	BoltPath       string
	FileDir        string
	IdleTimeout    time.Duration
	RevealWindow   time.Duration
	KDFTime        uint32
	KDFMemoryMiB   uint32
	KDFThreads     uint8
	CipherSuite    cipher.Suite
	Locale         language.Tag
	AllowedOrigins []string
	TokenTTL       time.Duration
	GitHubToken    string
	GistID         string
	LogLevel       slog.Level
	LogFormat      string
}

// HasGitHubCredentials reports whether gist backups can be configured at
// startup.
func (c *Config) HasGitHubCredentials() bool {
	return c.GitHubToken != ""
}

// KDFParams returns the Argon2id parameters for new vaults.
func (c *Config) KDFParams() cipher.Params {
	return cipher.Params{
		Time:      c.KDFTime,
		MemoryKiB: c.KDFMemoryMiB * 1024,
		Threads:   c.KDFThreads,
	}
}

// Load reads .env (if present) and then the TGVAULT_ environment variables,
// returning a validated Config. Variables already set in the environment take
// precedence over .env entries.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		ListenAddr:  envString("TGVAULT_LISTEN_ADDR", "127.0.0.1:8080"),
		DBPath:      envString("TGVAULT_DB_PATH", "tgvault.db"),
		BoltPath:    envString("TGVAULT_BOLT_PATH", "tgvault.bolt"),
		FileDir:     envString("TGVAULT_FILE_DIR", "tgvault-data"),
		GitHubToken: os.Getenv("TGVAULT_GITHUB_TOKEN"),
		GistID:      os.Getenv("TGVAULT_GIST_ID"),
	}

	var err error

	cfg.StoreBackend = strings.ToLower(envString("TGVAULT_STORE", BackendSQLite))
	switch cfg.StoreBackend {
	case BackendSQLite, BackendBolt, BackendFile:
	default:
		return nil, fmt.Errorf("TGVAULT_STORE has invalid backend %q (want sqlite, bolt or file)", cfg.StoreBackend)
	}

	if cfg.IdleTimeout, err = envDuration("TGVAULT_IDLE_TIMEOUT", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RevealWindow, err = envDuration("TGVAULT_REVEAL_WINDOW", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.TokenTTL, err = envDuration("TGVAULT_TOKEN_TTL", 15*time.Minute); err != nil {
		return nil, err
	}

	kdfTime, err := envUint("TGVAULT_KDF_TIME", 3, 32)
	if err != nil {
		return nil, err
	}
	kdfMemory, err := envUint("TGVAULT_KDF_MEMORY_MIB", 64, 32)
	if err != nil {
		return nil, err
	}
	kdfThreads, err := envUint("TGVAULT_KDF_THREADS", 4, 8)
	if err != nil {
		return nil, err
	}
	if kdfTime == 0 || kdfMemory == 0 || kdfThreads == 0 {
		return nil, errors.New("TGVAULT_KDF_TIME, TGVAULT_KDF_MEMORY_MIB and TGVAULT_KDF_THREADS must be positive")
	}
	cfg.KDFTime = uint32(kdfTime)
	cfg.KDFMemoryMiB = uint32(kdfMemory)
	cfg.KDFThreads = uint8(kdfThreads)

	if cfg.CipherSuite, err = cipher.ParseSuite(os.Getenv("TGVAULT_CIPHER_SUITE")); err != nil {
		return nil, fmt.Errorf("TGVAULT_CIPHER_SUITE: %w", err)
	}

	locale := envString("TGVAULT_LOCALE", "und")
	if cfg.Locale, err = language.Parse(locale); err != nil {
		return nil, fmt.Errorf("TGVAULT_LOCALE has invalid language tag %q: %w", locale, err)
	}

	cfg.AllowedOrigins = splitList(os.Getenv("TGVAULT_ALLOWED_ORIGINS"))

	if v, ok := os.LookupEnv("TGVAULT_LOG_LEVEL"); ok && v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("TGVAULT_LOG_LEVEL has invalid level %q: %w", v, err)
		}
	}

	cfg.LogFormat = strings.ToLower(envString("TGVAULT_LOG_FORMAT", "text"))
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("TGVAULT_LOG_FORMAT has invalid format %q (want text or json)", cfg.LogFormat)
	}

	return cfg, nil
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, v)
	}
	return d, nil
}

func envUint(key string, def uint64, bits int) (uint64, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 10, bits)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid integer %q: %w", key, v, err)
	}
	return n, nil
}

func splitList(v string) []string {
	out := []string{}
	for _, item := range strings.Split(v, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
