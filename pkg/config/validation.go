package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/saslgate/internal/telemetry"
	"github.com/marmos91/saslgate/pkg/diag"
	"github.com/marmos91/saslgate/pkg/realm"
	"github.com/marmos91/saslgate/pkg/sasl/mechanisms"
	"github.com/marmos91/saslgate/pkg/trust"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// realmSections are validated only when selected.
var realmSections = []string{"Realm.File", "Realm.LDAP", "Realm.SQL", "Realm.Token", "Realm.Kerberos"}

// Validate checks struct tags, then the cross-field rules tags cannot
// express: the selected realm section, mechanism names, property layers
// and trust versions.
func Validate(cfg *Config) error {
	if err := validate.StructExcept(cfg, realmSections...); err != nil {
		return formatValidationError(err)
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		return errors.New("telemetry.endpoint is required when telemetry is enabled")
	}
	for _, pt := range cfg.Telemetry.Profiling.ProfileTypes {
		if !telemetry.ValidProfileType(pt) {
			return fmt.Errorf("telemetry.profiling.profile_types: unknown profile type %q", pt)
		}
	}

	for _, list := range [][]string{cfg.Negotiation.Allow, cfg.Negotiation.Deny} {
		if _, err := mechanisms.Select(list...); err != nil {
			return fmt.Errorf("negotiation: %w", err)
		}
	}
	if _, err := PropertyLayers(cfg.Negotiation.PropertyLayers); err != nil {
		return err
	}

	if err := validateRealm(&cfg.Realm); err != nil {
		return err
	}

	if _, err := trust.ParseVersion(cfg.Trust.MinVersion); err != nil {
		return fmt.Errorf("trust.min_version: %w", err)
	}
	return nil
}

func validateRealm(cfg *RealmConfig) error {
	var section any
	switch cfg.Type {
	case RealmFile:
		if cfg.File.Path == "" {
			return errors.New("realm.file.path is required")
		}
	case RealmLDAP:
		section = &cfg.LDAP
	case RealmSQL:
		if err := validate.Struct(&cfg.SQL); err != nil {
			return formatValidationError(err)
		}
		if err := cfg.SQL.Validate(); err != nil {
			return fmt.Errorf("realm.sql: %w", err)
		}
	case RealmToken:
		section = &cfg.Token
	case RealmKerberos:
	default:
		return diag.New(diag.UnknownRealmType, cfg.Type)
	}
	if section != nil {
		if err := validate.Struct(section); err != nil {
			return formatValidationError(err)
		}
	}

	if cfg.Token.Secret != "" && len(cfg.Token.Secret) < 32 {
		return fmt.Errorf("realm.token.secret: %w", realm.ErrInvalidSecretLength)
	}
	return nil
}

// formatValidationError converts validator errors into a readable list.
func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value()))
		case "min", "max", "gte", "lte", "gt":
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s, got %v", field, fe.Tag(), fe.Param(), fe.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %q validation", field, fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
