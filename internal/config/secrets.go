package config

import (
	"errors"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Secrets are never read from the yaml file.
type Secrets struct {
	PushoverUserKey   string `env:"PUSHOVER_USER_KEY"`
	PushoverAppToken  string `env:"PUSHOVER_APP_TOKEN"`
	PushoverRecipient string `env:"PUSHOVER_RECIPIENT_KEY"`
	SlackWebhookURL   string `env:"SLACK_WEBHOOK_URL"`
	APIJWTSecret      string `env:"API_JWT_SECRET"`
	PaaSAPIKey        string `env:"PAAS_API_KEY"`
	RedisPassword     string `env:"REDIS_PASSWORD"`
	UnstableMoveBps   int64  `env:"UNSTABLE_CANCEL_MOVE_BPS"`
}

// LoadSecrets loads an optional dotenv file and parses GREENFLOOR_* variables.
func LoadSecrets(dotenvPath string) (Secrets, error) {
	if dotenvPath != "" {
		if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Secrets{}, err
		}
	}
	return env.ParseAsWithOptions[Secrets](env.Options{Prefix: "GREENFLOOR_"})
}

// PushoverUser returns the recipient key, falling back to the user key.
func (s Secrets) PushoverUser() string {
	if s.PushoverRecipient != "" {
		return s.PushoverRecipient
	}
	return s.PushoverUserKey
}
