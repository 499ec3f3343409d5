package main

import (
	"context"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:   "wikistore",
		Usage:  "Wiki storage engine with a relational metadata cache, REST API and MCP tools",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API with the file watcher",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools on stdin/stdout",
				Action: serveMCP,
			},
			{
				Name:   "check",
				Usage:  "Report whether the cache format matches this build",
				Action: check,
			},
			{
				Name:   "migrate",
				Usage:  "Upgrade the cache to the current format",
				Action: migrate,
			},
			{
				Name:   "vacuum",
				Usage:  "Compact the cache",
				Action: vacuum,
			},
			{
				Name:   "sync",
				Usage:  "Reconcile the cache with the page files on disk",
				Action: syncFiles,
			},
			{
				Name:   "rebuild",
				Usage:  "Re-derive all page metadata from the page files",
				Action: rebuild,
			},
			{
				Name:   "stats",
				Usage:  "Print cache statistics",
				Action: stats,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
