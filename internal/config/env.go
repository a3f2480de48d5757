package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment overrides. The process environment wins over the .env file.
const (
	EnvUsername         = "NODEMAILER_USERNAME"
	EnvBroadcastPort    = "NODEMAILER_BROADCAST_PORT"
	EnvMessagingPort    = "NODEMAILER_MESSAGING_PORT"
	EnvControlAddr      = "NODEMAILER_CONTROL_ADDR"
	EnvFavoritesBackend = "NODEMAILER_FAVORITES_BACKEND"
	EnvVerbose          = "NODEMAILER_VERBOSE"
)

func applyEnv(c *Config, envFile string) error {
	dotenv, err := godotenv.Read(envFile)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to read %s: %w", envFile, err)
		}
		dotenv = map[string]string{}
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}

	if v, ok := lookup(EnvUsername); ok {
		c.Username = v
	}
	if v, ok := lookup(EnvControlAddr); ok {
		c.ControlAddr = v
	}
	if v, ok := lookup(EnvFavoritesBackend); ok {
		c.FavoritesBackend = v
	}

	ints := []struct {
		key string
		dst *int
	}{
		{EnvBroadcastPort, &c.BroadcastPort},
		{EnvMessagingPort, &c.MessagingPort},
	}
	for _, i := range ints {
		v, ok := lookup(i.key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", i.key, v, err)
		}
		*i.dst = n
	}

	if v, ok := lookup(EnvVerbose); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvVerbose, v, err)
		}
		c.Verbose = b
	}
	return nil
}
