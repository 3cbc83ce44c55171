package internal

import (
	"time"
)

// Config is loaded from the environment by the binaries. Fields without a
// default are required so a misconfigured deployment fails at startup, not
// at first use.
type Config struct {
	BadgerFilepath    string        `env:"BADGER_FILEPATH,required=true"`
	LogLevel          string        `env:"LOG_LEVEL,required=true"`
	BufferSize        int           `env:"BUFFER_SIZE,default=64"`
	MaxContentLength  int           `env:"MAX_CONTENT_LENGTH,default=4000"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL,default=30s"`
	RestartInterval   time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	CensoredWords     []string      `env:"CENSORED_WORDS"`
	CensorChar        string        `env:"CENSOR_CHAR,default=*"`
}
