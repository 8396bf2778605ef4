package client

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/wippyai/impersonate-engine/errors"
	"github.com/wippyai/impersonate-engine/tlsprofile"
)

// Engine defaults applied when a timeout is not configured.
const (
	DefaultConnectTimeout = 30 * time.Second
	DefaultIdleTimeout    = 90 * time.Second
)

// Config describes a client. Nil fields fall back to engine defaults.
type Config struct {
	RequestTimeout           *time.Duration `koanf:"request_timeout" validate:"omitnil,gte=0s"`
	ConnectTimeout           *time.Duration `koanf:"connect_timeout" validate:"omitnil,gte=0s"`
	IdleTimeout              *time.Duration `koanf:"idle_timeout" validate:"omitnil,gte=0s"`
	AllowInvalidCertificates *bool          `koanf:"allow_invalid_certificates"`
	HTTPSOnly                *bool          `koanf:"https_only"`
	Profile                  string         `koanf:"profile" validate:"omitempty,profile"`
	VerboseLogging           bool           `koanf:"verbose_logging"`
}

func (c Config) requestTimeout() time.Duration {
	if c.RequestTimeout != nil {
		return *c.RequestTimeout
	}
	return 0
}

func (c Config) connectTimeout() time.Duration {
	if c.ConnectTimeout != nil {
		return *c.ConnectTimeout
	}
	return DefaultConnectTimeout
}

func (c Config) idleTimeout() time.Duration {
	if c.IdleTimeout != nil {
		return *c.IdleTimeout
	}
	return DefaultIdleTimeout
}

func (c Config) allowInvalidCertificates() bool {
	return c.AllowInvalidCertificates != nil && *c.AllowInvalidCertificates
}

func (c Config) httpsOnly() bool {
	return c.HTTPSOnly != nil && *c.HTTPSOnly
}

func newValidator(provider tlsprofile.Provider) *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("profile", func(fl validator.FieldLevel) bool {
		_, ok := provider.Profile(fl.Field().String())
		return ok
	})
	return v
}

// validateConfig maps validation failures onto argument errors.
func validateConfig(v *validator.Validate, cfg Config) error {
	err := v.Struct(cfg)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidArgument, err, "invalid client configuration")
	}

	fe := verrs[0]
	if fe.Tag() == "profile" {
		return errors.UnknownProfile(cfg.Profile)
	}
	return errors.New(errors.PhaseConfig, errors.KindInvalidArgument).
		Path(strings.ToLower(fe.Field())).
		Value(fe.Value()).
		Detail("%s", describe(fe)).
		Build()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gte":
		return fmt.Sprintf("%s must not be negative", fe.Field())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
