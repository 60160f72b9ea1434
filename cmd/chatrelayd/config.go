package main

import "time"

type Config struct {
	Host string `env:"HOST,default=localhost" validate:"required"`
	Port int    `env:"PORT,default=8080" validate:"gt=0"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true" validate:"required"`
	TokenSecret    string `env:"TOKEN_SECRET,required=true" validate:"required,min=32"`
	LogLevel       string `env:"LOG_LEVEL,default=info"`

	ActivityThreshold time.Duration `env:"ACTIVITY_THRESHOLD,default=30s" validate:"gt=0"`
	ExpireThreshold   time.Duration `env:"EXPIRE_THRESHOLD,default=60s" validate:"gtfield=ActivityThreshold"`
	SweepInterval     time.Duration `env:"SWEEP_INTERVAL,default=1s" validate:"gt=0"`
	TelemetryInterval time.Duration `env:"TELEMETRY_INTERVAL,default=5s" validate:"gt=0"`
}
