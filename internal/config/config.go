package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds the session core settings. Durations are parsed from env with
// time.ParseDuration syntax ("30m", "1s").
type Config struct {
	// BaseURL is the owning backend; only requests under it get credentials.
	BaseURL     string `validate:"required,url"`
	LoginPath   string `validate:"required,startswith=/"`
	ProfilePath string `validate:"required,startswith=/"`

	LoginRoute string `validate:"required,startswith=/"`
	HomeRoute  string `validate:"required,startswith=/"`

	IdleTimeout       time.Duration `validate:"gt=0"`
	IdleCheckInterval time.Duration `validate:"gt=0"`
	ActivityThrottle  time.Duration `validate:"gte=0"`

	RetryBaseDelay time.Duration `validate:"gte=0"`
	MaxRetries     int           `validate:"gte=0,lte=10"`
	SafetyMargin   time.Duration `validate:"gt=0"`
	HTTPTimeout    time.Duration `validate:"gt=0"`

	TabID string
}

// Defaults returns the values used when the environment is silent.
func Defaults() Config {
	return Config{
		BaseURL:           "http://localhost:8431/api",
		LoginPath:         "/auth/login",
		ProfilePath:       "/auth/me",
		LoginRoute:        "/login",
		HomeRoute:         "/dashboard",
		IdleTimeout:       30 * time.Minute,
		IdleCheckInterval: 60 * time.Second,
		ActivityThrottle:  2 * time.Second,
		RetryBaseDelay:    time.Second,
		MaxRetries:        2,
		SafetyMargin:      60 * time.Second,
		HTTPTimeout:       30 * time.Second,
	}
}

// ConfigFromEnv reads SESSION_* variables on top of Defaults.
func ConfigFromEnv() (Config, error) {
	cfg := Defaults()
	var errs []error

	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}

	str("SESSION_BASE_URL", &cfg.BaseURL)
	str("SESSION_LOGIN_PATH", &cfg.LoginPath)
	str("SESSION_PROFILE_PATH", &cfg.ProfilePath)
	str("SESSION_LOGIN_ROUTE", &cfg.LoginRoute)
	str("SESSION_HOME_ROUTE", &cfg.HomeRoute)
	str("SESSION_TAB_ID", &cfg.TabID)
	dur("SESSION_IDLE_TIMEOUT", &cfg.IdleTimeout)
	dur("SESSION_IDLE_CHECK_INTERVAL", &cfg.IdleCheckInterval)
	dur("SESSION_ACTIVITY_THROTTLE", &cfg.ActivityThrottle)
	dur("SESSION_RETRY_BASE_DELAY", &cfg.RetryBaseDelay)
	dur("SESSION_SAFETY_MARGIN", &cfg.SafetyMargin)
	dur("SESSION_HTTP_TIMEOUT", &cfg.HTTPTimeout)
	if v := strings.TrimSpace(os.Getenv("SESSION_MAX_RETRIES")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SESSION_MAX_RETRIES: %w", err))
		} else {
			cfg.MaxRetries = n
		}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if len(errs) > 0 {
		return cfg, fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return cfg, cfg.Validate()
}

// Validate checks struct tags and returns one error listing every bad field.
func (c Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// LoginURL is the absolute login endpoint.
func (c Config) LoginURL() string { return c.BaseURL + c.LoginPath }

// ProfileURL is the absolute profile endpoint.
func (c Config) ProfileURL() string { return c.BaseURL + c.ProfilePath }
