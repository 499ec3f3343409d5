package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/starford/wikistore/internal"
	"github.com/starford/wikistore/internal/indexer"
	"github.com/starford/wikistore/internal/models"
	"github.com/starford/wikistore/internal/wikidata"
	pkgconfig "github.com/starford/wikistore/pkg/config"
)

func out(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// openWiki loads the config and opens the wiki for a maintenance command.
func openWiki(ctx context.Context, cmd *cli.Command, mutate func(*internal.WikiConfig)) (*wikidata.WikiData, *slog.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if mutate != nil {
		mutate(&cfg.Wiki)
	}
	logger := internal.NewLogger(cfg.App.LogLevel)
	wd, err := internal.OpenWiki(ctx, cfg.Wiki, logger)
	if err != nil {
		return nil, nil, err
	}
	return wd, logger, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, internal.WithConfig(cfg))
}

func check(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	status, reason, err := wikidata.CheckFormat(ctx, cfg.Wiki.Wikidata())
	if err != nil {
		return err
	}
	fmt.Fprintf(out(cmd), "format: %s\n", status)
	if reason != "" {
		fmt.Fprintf(out(cmd), "reason: %s\n", reason)
	}
	if status == models.FormatUnsupported {
		return errors.New("cache format is not supported by this build")
	}
	return nil
}

func migrate(ctx context.Context, cmd *cli.Command) error {
	wd, _, err := openWiki(ctx, cmd, func(c *internal.WikiConfig) {
		c.ReadOnly = false
		c.AutoMigrate = true
	})
	if err != nil {
		return err
	}
	defer wd.Close()
	if err := wd.Migrate(ctx); err != nil {
		return err
	}
	status, _, err := wd.CheckFormat(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out(cmd), "format: %s\n", status)
	return nil
}

func vacuum(ctx context.Context, cmd *cli.Command) error {
	wd, _, err := openWiki(ctx, cmd, nil)
	if err != nil {
		return err
	}
	defer wd.Close()
	if err := wd.Vacuum(ctx); err != nil {
		if errors.Is(err, errors.ErrUnsupported) {
			fmt.Fprintf(out(cmd), "backend %q has nothing to compact\n", wd.Config().Backend)
			return nil
		}
		return err
	}
	fmt.Fprintln(out(cmd), "vacuum finished")
	return nil
}

func syncFiles(ctx context.Context, cmd *cli.Command) error {
	wd, logger, err := openWiki(ctx, cmd, nil)
	if err != nil {
		return err
	}
	defer wd.Close()
	rep, err := indexer.New(wd, logger).Sync(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out(cmd), "imported %d, changed %d, removed %d, refreshed %d\n",
		rep.Imported, rep.Changed, rep.Removed, rep.Refreshed)
	return nil
}

func rebuild(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	wd, logger, err := openWiki(ctx, cmd, nil)
	if err != nil {
		return err
	}
	defer wd.Close()

	started := time.Now()
	err = indexer.New(wd, logger).Rebuild(ctx, func(done, total int) {
		if done == total || done%100 == 0 {
			fmt.Fprintf(out(cmd), "\rrebuilt %s of %s pages", humanize.Comma(int64(done)), humanize.Comma(int64(total)))
		}
	})
	fmt.Fprintln(out(cmd))
	if err != nil {
		return err
	}
	fmt.Fprintf(out(cmd), "rebuild finished in %s\n", time.Since(started).Round(time.Millisecond))
	return nil
}

func stats(ctx context.Context, cmd *cli.Command) error {
	wd, _, err := openWiki(ctx, cmd, func(c *internal.WikiConfig) { c.ReadOnly = true })
	if err != nil {
		return err
	}
	defer wd.Close()

	st, err := wd.Stats(ctx)
	if err != nil {
		return err
	}
	w := out(cmd)
	fmt.Fprintf(w, "backend:     %s\n", wd.Config().Backend)
	fmt.Fprintf(w, "pages:       %s\n", humanize.Comma(int64(st.Pages)))
	fmt.Fprintf(w, "relations:   %s\n", humanize.Comma(int64(st.Relations)))
	fmt.Fprintf(w, "attributes:  %s\n", humanize.Comma(int64(st.Attributes)))
	fmt.Fprintf(w, "todos:       %s\n", humanize.Comma(int64(st.Todos)))
	fmt.Fprintf(w, "match terms: %s\n", humanize.Comma(int64(st.MatchTerms)))
	fmt.Fprintf(w, "data blocks: %s (%s stored in cache)\n", humanize.Comma(int64(st.DataBlocks)), humanize.Bytes(uint64(st.InternBytes)))

	if st.Pages > 0 {
		oldest, newest, err := wd.TimeBounds(ctx, models.FieldModified)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "modified:    %s .. %s\n", humanize.Time(oldest), humanize.Time(newest))
	}
	return nil
}
