// Package config loads process settings from environment variables.
//
// It wraps github.com/caarlos0/env/v11 for struct tag parsing and
// github.com/joho/godotenv for optional .env files. A default .env in the
// working directory is picked up once per process; LoadEnv loads others.
//
//	type AppConfig struct {
//		ConfigPath string        `env:"CONFIG_PATH" envDefault:"rollout.yaml"`
//		Interval   time.Duration `env:"MONITOR_INTERVAL" envDefault:"1m"`
//	}
//
//	var cfg AppConfig
//	if err := config.Load(&cfg, config.WithPrefix("ROLLOUT_")); err != nil {
//		return err
//	}
//
// Errors wrap ErrParsingConfig, ErrLoadingEnvFile or ErrNilPointer and can be
// matched with errors.Is.
package config
