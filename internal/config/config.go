// Package config loads the server's TOML configuration file, mirroring the
// teacher repo's viper+go-playground/validator pattern (api/integration-api
// /config/config.go: InitConfig returns a *viper.Viper, GetApplicationConfig
// unmarshals and validates it into a struct) adapted from env-var/.env
// sourcing to the TOML file format the original implementation's main.rs
// Config::load uses.
package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ModuleConfig describes one named engine instance the server can host,
// mirroring main.rs's ModuleConfig entries in Config.modules.
type ModuleConfig struct {
	LMModelFile               string   `mapstructure:"lm_model_file" validate:"required"`
	TextTokenizerFile         string   `mapstructure:"text_tokenizer_file" validate:"required"`
	AudioTokenizerFile        string   `mapstructure:"audio_tokenizer_file" validate:"required"`
	BatchWidth                int      `mapstructure:"batch_width" validate:"required,min=1"`
	AsrDelayInTokens          uint64   `mapstructure:"asr_delay_in_tokens"`
	LogFrequencySeconds       float64  `mapstructure:"log_frequency_s"`
	ConditioningDelay         *float64 `mapstructure:"conditioning_delay"`
	ConditioningLearntPadding bool     `mapstructure:"conditioning_learnt_padding"`
	Temperature               float64  `mapstructure:"temperature"`
	DTypeOverride             string   `mapstructure:"dtype_override"`
}

// AuthConfig controls whether the Session Endpoint requires a verified
// credential. Skip defaults to false; Secret is the HMAC signing key for
// JWTVerifier.
type AuthConfig struct {
	Skip   bool   `mapstructure:"skip"`
	Secret string `mapstructure:"secret" validate:"required_unless=Skip true"`
}

// AppConfig is the top-level server configuration, mirroring main.rs's
// Config struct.
type AppConfig struct {
	InstanceName string                  `mapstructure:"instance_name" validate:"required"`
	StaticDir    string                  `mapstructure:"static_dir"`
	LogDir       string                  `mapstructure:"log_dir" validate:"required"`
	Warmup       bool                    `mapstructure:"warmup"`
	ListenAddr   string                  `mapstructure:"listen_addr" validate:"required"`
	Modules      map[string]ModuleConfig `mapstructure:"modules" validate:"required,dive"`
	Auth         AuthConfig              `mapstructure:"auth"`
	RedisAddr    string                  `mapstructure:"redis_addr"`
}

// InitConfig constructs a *viper.Viper bound to path, with the defaults
// this server needs when a field is absent from the TOML file.
func InitConfig(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("instance_name", "streamasr")
	v.SetDefault("log_dir", "./logs")
	v.SetDefault("warmup", true)
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("auth.skip", false)
}

// GetApplicationConfig unmarshals v into an AppConfig and validates every
// field and module entry, including the conditioning_delay /
// conditioning_learnt_padding XOR rule the original implementation's
// AsrConfig enforces.
func GetApplicationConfig(v *viper.Viper) (*AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	for name, m := range cfg.Modules {
		hasDelay := m.ConditioningDelay != nil
		if hasDelay == m.ConditioningLearntPadding {
			return nil, fmt.Errorf("config: module %q: exactly one of conditioning_delay or conditioning_learnt_padding must be set", name)
		}
	}
	return &cfg, nil
}
