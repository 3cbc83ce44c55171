package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// E2E_DB_PATH points at the Badger directory; empty means a fresh
	// temporary directory per run
	DBPath string `envconfig:"E2E_DB_PATH"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
	// E2E_MESSAGE_COUNT sizes the conversation driven through the stack
	MessageCount int `envconfig:"E2E_MESSAGE_COUNT" default:"20"`
	// E2E_STEP_TIMEOUT bounds how long each propagation step may take
	StepTimeout string `envconfig:"E2E_STEP_TIMEOUT" default:"5s"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
