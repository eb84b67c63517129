package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("ok, defaults", func(t *testing.T) {
		t.Setenv("CREDENTIALS_SECRET", "s3cret")

		cfg, err := Load()
		require.NoError(t, err)
		require.Equal(t, "sqlite", cfg.Store.Driver)
		require.Equal(t, "sandbox", cfg.Gateway.Provider)
		require.Equal(t, 15*time.Minute, cfg.Gateway.QRTTL)
		require.Equal(t, 30*time.Minute, cfg.Reservations.TTL)
		require.Equal(t, 2*time.Minute, cfg.Payments.ExpiryGrace)
		require.Equal(t, "0.0.0.0:8080", cfg.Server.Address())
		require.Equal(t, []string{"*"}, cfg.Server.Origins())
	})

	t.Run("ok, list and dsn helpers", func(t *testing.T) {
		t.Setenv("CREDENTIALS_SECRET", "s3cret")
		t.Setenv("API_KEYS", " k1, ,k2 ")
		t.Setenv("DB_DRIVER", "mysql")
		t.Setenv("DB_USER", "shop")
		t.Setenv("DB_PASS", "pw")

		cfg, err := Load()
		require.NoError(t, err)
		require.Equal(t, []string{"k1", "k2"}, cfg.Security.Keys())
		require.Equal(t, "shop:pw@tcp(localhost:3306)/gameshop?parseTime=true", cfg.Store.MySQLDSN())
		require.Equal(t, "postgres://shop:pw@localhost:5432/gameshop?sslmode=disable", cfg.Store.PostgresDSN())
	})

	t.Run("fail, missing credentials secret", func(t *testing.T) {
		t.Setenv("CREDENTIALS_SECRET", "")

		_, err := Load()
		require.Error(t, err)
	})

	t.Run("fail, sepay without account", func(t *testing.T) {
		t.Setenv("CREDENTIALS_SECRET", "s3cret")
		t.Setenv("GATEWAY_PROVIDER", "sepay")

		_, err := Load()
		require.ErrorContains(t, err, "SEPAY_ACCOUNT_NUMBER")
	})

	t.Run("fail, sandbox in production", func(t *testing.T) {
		t.Setenv("CREDENTIALS_SECRET", "s3cret")
		t.Setenv("APP_ENV", "production")

		_, err := Load()
		require.ErrorContains(t, err, "sandbox gateway")
	})

	t.Run("fail, memory store in production", func(t *testing.T) {
		t.Setenv("CREDENTIALS_SECRET", "s3cret")
		t.Setenv("APP_ENV", "production")
		t.Setenv("DB_DRIVER", "memory")
		t.Setenv("GATEWAY_PROVIDER", "sepay")
		t.Setenv("SEPAY_ACCOUNT_NUMBER", "0123456789")
		t.Setenv("SEPAY_BANK_CODE", "MB")

		_, err := Load()
		require.ErrorContains(t, err, "memory store")
	})

	t.Run("ok, memory store outside production", func(t *testing.T) {
		t.Setenv("CREDENTIALS_SECRET", "s3cret")
		t.Setenv("DB_DRIVER", "memory")

		cfg, err := Load()
		require.NoError(t, err)
		require.Equal(t, "memory", cfg.Store.Driver)
	})
}
