// Package config carga la configuración del servicio (YAML + env).
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/mailotp/internal/email"
	"github.com/dropDatabas3/mailotp/internal/otp"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env      string `yaml:"env"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Storage struct {
		// postgres | bolt | memory
		Driver   string `yaml:"driver"`
		DSN      string `yaml:"dsn"`
		BoltPath string `yaml:"bolt_path"`
		Postgres struct {
			MaxOpenConns    int    `yaml:"max_open_conns"`
			MaxIdleConns    int    `yaml:"max_idle_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		// memory | redis
		Driver string `yaml:"driver"`
		Redis  struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	SMTP email.SMTPConfig `yaml:"smtp"`

	JWT struct {
		Issuer    string `yaml:"issuer"`
		AccessTTL string `yaml:"access_ttl"`
	} `yaml:"jwt"`

	// Authenticator es la superficie de configuración del step-up.
	Authenticator Authenticator `yaml:"authenticator"`

	// Rate limita start/verify por IP (anti brute-force del código y
	// anti flood de emails).
	Rate struct {
		Enabled bool   `yaml:"enabled"`
		Max     int    `yaml:"max"`
		Window  string `yaml:"window"`
	} `yaml:"rate"`

	Cleanup struct {
		Interval string `yaml:"interval"`
	} `yaml:"cleanup"`

	// Directory define principals estáticos para despliegues standalone.
	// Un host real inyecta su propio directorio y esta sección queda vacía.
	Directory struct {
		Principals []Principal `yaml:"principals"`
	} `yaml:"directory"`

	// AttemptTTL limita cuánto vive un intento de login en el cache.
	AttemptTTL string `yaml:"attempt_ttl"`
}

// Authenticator refleja las opciones del authenticator de OTP por email.
type Authenticator struct {
	// Role filtra a quién se le exige OTP. Vacío = todos.
	Role string `yaml:"role"`
	// NegateRole invierte el filtro: exigir OTP a quien NO tiene el rol.
	NegateRole bool `yaml:"negate_role"`

	CodeAlphabet        string `yaml:"code_alphabet"`
	CodeLength          int    `yaml:"code_length"`
	CodeLifetimeSeconds int    `yaml:"code_lifetime_seconds"`

	IPTrustEnabled         bool `yaml:"ip_trust_enabled"`
	IPTrustDurationMinutes int  `yaml:"ip_trust_duration_minutes"`

	DeviceTrustEnabled bool `yaml:"device_trust_enabled"`
	// DeviceTrustDurationDays: 0 = permanente.
	DeviceTrustDurationDays int `yaml:"device_trust_duration_days"`

	// TrustOnlyWhenSole: no aplicar bypass cuando el authenticator es una
	// alternativa entre varias (el usuario eligió este método a propósito).
	TrustOnlyWhenSole bool `yaml:"trust_only_when_sole"`
}

// Principal es un usuario del directorio estático.
type Principal struct {
	TenantID      string   `yaml:"tenant_id"`
	ID            string   `yaml:"id"`
	Email         string   `yaml:"email"`
	EmailVerified bool     `yaml:"email_verified"`
	Enabled       bool     `yaml:"enabled"`
	Roles         []string `yaml:"roles"`
}

// Load lee el YAML (si path existe), aplica overrides de env y defaults.
// Un archivo ausente no es error: queda todo en defaults + env.
func Load(path string) (*Config, error) {
	var c Config

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		} else if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	c.applyEnv()
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("MAILOTP_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("MAILOTP_STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("MAILOTP_STORAGE_DSN"); v != "" {
		c.Storage.DSN = v
	}
	if v := os.Getenv("MAILOTP_CACHE_DRIVER"); v != "" {
		c.Cache.Driver = v
	}
	if v := os.Getenv("MAILOTP_REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
	}
	if v := os.Getenv("MAILOTP_SMTP_HOST"); v != "" {
		c.SMTP.Host = v
	}
	if v := os.Getenv("MAILOTP_SMTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.SMTP.Port = p
		}
	}
	if v := os.Getenv("MAILOTP_SMTP_PASSWORD"); v != "" {
		c.SMTP.Password = v
	}
	if v := os.Getenv("MAILOTP_LOG_LEVEL"); v != "" {
		c.App.LogLevel = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "mailotp"
	}
	if c.JWT.Issuer == "" {
		c.JWT.Issuer = "mailotp"
	}
	if c.JWT.AccessTTL == "" {
		c.JWT.AccessTTL = "15m"
	}
	if c.Rate.Max == 0 {
		c.Rate.Max = 10
	}
	if c.Rate.Window == "" {
		c.Rate.Window = "1m"
	}
	if c.Cleanup.Interval == "" {
		c.Cleanup.Interval = "1h"
	}
	if c.AttemptTTL == "" {
		c.AttemptTTL = "15m"
	}

	a := &c.Authenticator
	if a.CodeAlphabet == "" {
		a.CodeAlphabet = otp.DefaultAlphabet
	}
	if a.CodeLength == 0 {
		a.CodeLength = otp.DefaultLength
	}
	if a.CodeLifetimeSeconds == 0 {
		a.CodeLifetimeSeconds = 600 // 10 minutos
	}
	if a.IPTrustDurationMinutes == 0 {
		a.IPTrustDurationMinutes = 60
	}
	// DeviceTrustDurationDays queda en 0 = permanente si no se setea.
}

// Validate chequea las precondiciones que el resto del código asume.
// El generador de códigos NO valida alphabet/length: se valida acá, una vez.
func (c *Config) Validate() error {
	a := &c.Authenticator
	if len(a.CodeAlphabet) == 0 {
		return fmt.Errorf("config: authenticator.code_alphabet no puede ser vacío")
	}
	if a.CodeLength <= 0 {
		return fmt.Errorf("config: authenticator.code_length debe ser > 0")
	}
	if a.CodeLifetimeSeconds <= 0 {
		return fmt.Errorf("config: authenticator.code_lifetime_seconds debe ser > 0")
	}
	if a.IPTrustDurationMinutes <= 0 {
		return fmt.Errorf("config: authenticator.ip_trust_duration_minutes debe ser > 0")
	}
	if a.DeviceTrustDurationDays < 0 {
		return fmt.Errorf("config: authenticator.device_trust_duration_days no puede ser negativo")
	}
	switch c.Storage.Driver {
	case "postgres", "pg":
		if c.Storage.DSN == "" {
			return fmt.Errorf("config: storage.dsn requerido para driver postgres")
		}
	case "bolt":
		if c.Storage.BoltPath == "" {
			return fmt.Errorf("config: storage.bolt_path requerido para driver bolt")
		}
	case "memory", "":
	default:
		return fmt.Errorf("config: storage.driver desconocido %q", c.Storage.Driver)
	}
	return nil
}
