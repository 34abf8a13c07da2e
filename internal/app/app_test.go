package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"membership-backend/internal/config"
	"membership-backend/internal/domain"
	"membership-backend/internal/idempotency"
	"membership-backend/internal/security"
	"membership-backend/internal/service"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Server:   config.ServerConfig{Host: "localhost", Port: 8080},
		Database: config.DatabaseConfig{Type: "memory"},
		Email:    config.EmailConfig{Provider: "none"},
		JWT:      config.JWTConfig{Secret: "an-app-test-secret-of-sufficient-length"},
		Storage:  config.StorageConfig{UploadDir: t.TempDir()},
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestNewWithMemoryStore(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(t))
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &security.MemoryLimiter{}, a.Limiter)
	assert.IsType(t, &idempotency.MemoryStore{}, a.Idempotency)

	types, err := a.Lifecycle.ListMembershipTypes(context.Background())
	require.NoError(t, err)
	require.Len(t, types, 1)
	assert.Equal(t, int64(10300), types[0].Fee)

	req, err := a.Lifecycle.Submit(context.Background(), domain.RequestPayload{
		Identity: domain.Identity{
			FirstName:   "Jean",
			LastName:    "Mbuyi",
			Gender:      "M",
			BirthDate:   "1979-01-30",
			BirthPlace:  "Mbuji-Mayi",
			Nationality: "congolaise",
			Phone:       "0812345678",
		},
		Address:   domain.Address{Province: "Kinshasa", City: "Kinshasa", Street: "1 avenue Kasa-Vubu"},
		Documents: domain.Documents{PhotoURL: a.Config.Storage.BaseURL + "/photo.jpg"},
	})
	require.NoError(t, err)
	assert.Regexp(t, `^ADH-\d{4}-[A-Z0-9]{6}$`, req.Matricule)
}

func TestEmailDispatcherSelection(t *testing.T) {
	t.Run("Disabled", func(t *testing.T) {
		a := &App{Config: memoryConfig(t)}
		assert.IsType(t, service.NopEmailDispatcher{}, a.emailDispatcher(context.Background()))
		a.Close()
	})

	t.Run("SMTP queue", func(t *testing.T) {
		cfg := memoryConfig(t)
		cfg.Email.Provider = "smtp"
		cfg.SMTP = config.SMTPConfig{Host: "localhost", Port: 2525, From: "adhesions@example.com"}
		a := &App{Config: cfg}
		assert.IsType(t, &service.EmailQueue{}, a.emailDispatcher(context.Background()))
		a.Close()
	})
}

func TestNewRejectsBadRedisURL(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Redis = config.RedisConfig{Enabled: true, URL: "not-a-url"}
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}
