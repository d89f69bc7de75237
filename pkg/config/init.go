package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/marmos91/saslgate/pkg/realm"
)

const configHeader = `# saslgate configuration file
#
# Values can be overridden with SASLGATE_* environment variables, e.g.
#   SASLGATE_LOGGING_LEVEL=DEBUG
#   SASLGATE_REALM_TYPE=ldap
#
# Realm types: file, ldap, sql, token, kerberos. Only the section of the
# selected type is read.

`

// InitConfig writes a starter configuration to the default location and
// returns its path. An existing file is kept unless force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a starter configuration to path, plus an empty
// realm file next to it when none exists. The token secret is generated.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
		}
	}

	cfg := GetDefaultConfig()
	cfg.Realm.File.Path = filepath.Join(filepath.Dir(path), "realm.yaml")
	secret, err := generateSecret()
	if err != nil {
		return err
	}
	cfg.Realm.Token.Secret = secret

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(configHeader), data...), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	if _, err := os.Stat(cfg.Realm.File.Path); os.IsNotExist(err) {
		if err := realm.WriteFileRealm(cfg.Realm.File.Path, realm.FileContents{Principals: []realm.FilePrincipal{}}); err != nil {
			return err
		}
	}
	return nil
}

func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
