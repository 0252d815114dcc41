package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

const validConfig = `
instance_name = "test"
log_dir = "./logs"
listen_addr = ":9090"

[auth]
skip = true

[modules.default]
lm_model_file = "lm.safetensors"
text_tokenizer_file = "text.model"
audio_tokenizer_file = "audio.safetensors"
batch_width = 8
asr_delay_in_tokens = 6
conditioning_delay = 0.0
`

func TestGetApplicationConfigAccepts(t *testing.T) {
	path := writeConfig(t, validConfig)
	v, err := InitConfig(path)
	require.NoError(t, err)

	cfg, err := GetApplicationConfig(v)
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.InstanceName)
	assert.Equal(t, 8, cfg.Modules["default"].BatchWidth)
	assert.True(t, cfg.Auth.Skip, "auth.skip = true in the file must be honoured")
}

const learntPaddingWithoutDelayConfig = `
instance_name = "test"
log_dir = "./logs"
listen_addr = ":9090"

[auth]
skip = true

[modules.default]
lm_model_file = "lm.safetensors"
text_tokenizer_file = "text.model"
audio_tokenizer_file = "audio.safetensors"
batch_width = 8
asr_delay_in_tokens = 6
conditioning_learnt_padding = true
`

// conditioning_learnt_padding set with no conditioning_delay is the
// (None, true) combination the original's AsrConfig accepts.
func TestGetApplicationConfigAcceptsLearntPaddingWithoutDelay(t *testing.T) {
	path := writeConfig(t, learntPaddingWithoutDelayConfig)
	v, err := InitConfig(path)
	require.NoError(t, err)

	_, err = GetApplicationConfig(v)
	require.NoError(t, err)
}

const bothConditioningFieldsConfig = `
instance_name = "test"
log_dir = "./logs"
listen_addr = ":9090"

[auth]
skip = true

[modules.default]
lm_model_file = "lm.safetensors"
text_tokenizer_file = "text.model"
audio_tokenizer_file = "audio.safetensors"
batch_width = 8
asr_delay_in_tokens = 6
conditioning_delay = 0.1
conditioning_learnt_padding = true
`

// Setting both conditioning_delay and conditioning_learnt_padding is the
// (Some(_), true) combination the original's AsrConfig rejects.
func TestGetApplicationConfigRejectsBothConditioningFieldsSet(t *testing.T) {
	path := writeConfig(t, bothConditioningFieldsConfig)
	v, err := InitConfig(path)
	require.NoError(t, err)

	_, err = GetApplicationConfig(v)
	assert.Error(t, err)
}

const neitherConditioningFieldConfig = `
instance_name = "test"
log_dir = "./logs"
listen_addr = ":9090"

[auth]
skip = true

[modules.default]
lm_model_file = "lm.safetensors"
text_tokenizer_file = "text.model"
audio_tokenizer_file = "audio.safetensors"
batch_width = 8
asr_delay_in_tokens = 6
`

// Setting neither field is the (None, false) combination the original's
// AsrConfig rejects: every module must pick a conditioning mode.
func TestGetApplicationConfigRejectsNeitherConditioningFieldSet(t *testing.T) {
	path := writeConfig(t, neitherConditioningFieldConfig)
	v, err := InitConfig(path)
	require.NoError(t, err)

	_, err = GetApplicationConfig(v)
	assert.Error(t, err)
}

func TestGetApplicationConfigRequiresModules(t *testing.T) {
	path := writeConfig(t, `
instance_name = "test"
log_dir = "./logs"
listen_addr = ":9090"
`)
	v, err := InitConfig(path)
	require.NoError(t, err)

	_, err = GetApplicationConfig(v)
	assert.Error(t, err)
}
