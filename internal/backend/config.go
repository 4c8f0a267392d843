package backend

import (
	"os"
	"time"
)

type Config struct {
	Addr     string
	Prefix   string
	Issuer   string
	TokenTTL time.Duration
}

// ConfigFromEnv reads DEVBACKEND_* variables with defaults.
func ConfigFromEnv() Config {
	cfg := Config{
		Addr:     "0.0.0.0:8431",
		Prefix:   "/api",
		Issuer:   "session-devbackend",
		TokenTTL: time.Hour,
	}
	if v := os.Getenv("DEVBACKEND_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("DEVBACKEND_PREFIX"); v != "" {
		cfg.Prefix = v
	}
	if v := os.Getenv("DEVBACKEND_ISSUER"); v != "" {
		cfg.Issuer = v
	}
	if v := os.Getenv("DEVBACKEND_TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.TokenTTL = d
		}
	}
	return cfg
}

// SeedDemo adds the demo accounts used by the CLI and tests.
func SeedDemo(d *Directory) error {
	seed := []struct {
		correo, pw, name, role string
		company                int64
	}{
		{"admin@example.com", "admin123", "Administrador", "admin", 1},
		{"ventas@example.com", "ventas123", "Ventas Norte", "vendedor", 1},
		{"almacen@example.com", "almacen123", "Almacén Sur", "almacen", 2},
	}
	for _, s := range seed {
		if _, err := d.Add(s.correo, s.pw, s.name, s.role, s.company); err != nil {
			return err
		}
	}
	return nil
}
