// Package calendar parses calendar service flags and launches the service.
package calendar

import (
	"context"
	"flag"

	entrypoint "github.com/mirakulix/play-together-api/internal/platform/cmd"
	server "github.com/mirakulix/play-together-api/internal/services/calendar/app"
)

// Config holds calendar command configuration.
type Config struct {
	Port int `env:"PLAY_TOGETHER_CALENDAR_PORT" envDefault:"8080"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The calendar gRPC server port")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the calendar gRPC API service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceCalendar, func(context.Context) error {
		return server.Run(ctx, cfg.Port)
	})
}
