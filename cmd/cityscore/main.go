package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/jenna-jordan/Boston-CityScore-App/internal/cache"
	"github.com/jenna-jordan/Boston-CityScore-App/internal/cli"
	"github.com/jenna-jordan/Boston-CityScore-App/internal/opendata"
	"github.com/jenna-jordan/Boston-CityScore-App/internal/pipeline"
	"github.com/jenna-jordan/Boston-CityScore-App/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Progress goes to stderr so that export --out - stays clean.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	env := &cli.Env{
		ResourceID: cfg.Source.ResourceID,
		NewSource: func() (cli.Source, error) {
			// The redis backend shares the server's cache.
			var resourceCache opendata.Cache = cache.NewMemory(cfg.Cache.TTL)
			if cfg.Cache.Backend == "redis" {
				rdb := redis.NewClient(&redis.Options{
					Addr:     cfg.Redis.Addr,
					Password: cfg.Redis.Password,
					DB:       cfg.Redis.DB,
				})
				resourceCache = cache.NewRedis(rdb, cfg.Cache.TTL)
			}

			client := opendata.NewClient(opendata.Config{
				Host:       cfg.Source.Host,
				SearchPath: cfg.Source.SearchPath,
				PageLimit:  cfg.Source.PageLimit,
				Timeout:    cfg.Source.Timeout,
			},
				opendata.WithCache(resourceCache),
				opendata.WithLogger(logger),
			)
			return pipeline.NewLoader(client, pipeline.WithLogger(logger)), nil
		},
	}

	if err := cli.NewRootCmd(env).Execute(); err != nil {
		os.Exit(1)
	}
}
