// Package config resolves run configuration from a Provider.
//
// Two providers exist: Values, for directly supplied settings, and
// ViperProvider, which resolves keys from FILESYNC_-prefixed environment
// variables and an optional config file. Load validates everything it needs
// up front and reports every missing key at once.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variable of every key.
const EnvPrefix = "FILESYNC"

// Provider resolves dotted configuration keys such as "source.username".
type Provider interface {
	// Lookup returns the value of key. ok is false when the key is unset
	// or empty.
	Lookup(key string) (value string, ok bool)
	// Source describes where values come from, for error messages.
	Source() string
}

// Values is a Provider over directly supplied key/value pairs.
type Values map[string]string

func (v Values) Lookup(key string) (string, bool) {
	s, ok := v[key]
	return s, ok && s != ""
}

func (v Values) Source() string {
	return "supplied values"
}

// ViperProvider resolves keys through viper: environment variables first,
// then the config file if one was given.
type ViperProvider struct {
	v *viper.Viper
}

// NewViperProvider creates a ViperProvider. configFile may be empty.
func NewViperProvider(configFile string) (*ViperProvider, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}
	return &ViperProvider{v: v}, nil
}

func (p *ViperProvider) Lookup(key string) (string, bool) {
	s := p.v.GetString(key)
	return s, s != ""
}

func (p *ViperProvider) Source() string {
	if f := p.v.ConfigFileUsed(); f != "" {
		return "environment (" + EnvPrefix + "_*) and " + f
	}
	return "environment (" + EnvPrefix + "_*)"
}

// EnvName is the environment variable that sets key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}
