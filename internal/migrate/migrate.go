// Package migrate upgrades a relational cache through an ordered table of
// version-to-version steps. Backends own their step history; this package
// owns ordering, version bookkeeping and failure reporting.
package migrate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/wikistore/internal/apperr"
	"github.com/starford/wikistore/internal/models"
)

// Settings keys holding the version markers.
const (
	KeyFormatVersion = "formatver"
	KeyWriteCompat   = "writecompatver"
	KeyReadCompat    = "readcompatver"
)

// Versions are the three markers stored in the settings table.
type Versions struct {
	Format      int
	WriteCompat int
	ReadCompat  int
}

// Env carries what steps may need besides the cache itself.
type Env struct {
	ContentDir string
	PageSuffix string
	Logger     *slog.Logger
}

func (e Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// Step upgrades a cache from From to To. Apply must be safe to re-run if
// the transaction it ran in was rolled back.
type Step[T any] struct {
	From  int
	To    int
	Name  string
	Apply func(ctx context.Context, tx T, env Env) error
}

// Plan is a backend's format history.
type Plan[T any] struct {
	// Current is the format version this engine writes.
	Current int
	// ReadCompat is the oldest engine version able to read Current.
	ReadCompat int
	Steps      []Step[T]
}

// Target is the view of a backend the runner needs.
type Target[T any] interface {
	// Versions reads the stored markers; a cache without markers is version 0.
	Versions(ctx context.Context) (Versions, error)
	InTx(ctx context.Context, fn func(tx T) error) error
	WriteVersions(ctx context.Context, tx T, v Versions) error
}

// Status compares stored versions with the plan.
func (p Plan[T]) Status(v Versions) (models.FormatStatus, string) {
	switch {
	case v.WriteCompat > p.Current:
		return models.FormatUnsupported, fmt.Sprintf("cache written by a newer engine (write compat %d, supported %d)", v.WriteCompat, p.Current)
	case v.ReadCompat > p.Current:
		return models.FormatUnsupported, fmt.Sprintf("cache requires a newer engine to read (read compat %d, supported %d)", v.ReadCompat, p.Current)
	case v.Format < p.Current:
		return models.FormatNeedsMigration, fmt.Sprintf("format version %d, current %d", v.Format, p.Current)
	}
	return models.FormatUpToDate, ""
}

func (p Plan[T]) step(from int) (Step[T], bool) {
	for _, s := range p.Steps {
		if s.From == from {
			return s, true
		}
	}
	return Step[T]{}, false
}

// Check reads the markers of target and evaluates them against plan.
func Check[T any](ctx context.Context, target Target[T], plan Plan[T]) (models.FormatStatus, string, error) {
	v, err := target.Versions(ctx)
	if err != nil {
		return models.FormatUnsupported, "", err
	}
	status, msg := plan.Status(v)
	return status, msg, nil
}

// Run applies every step needed to bring target to plan.Current. Each step
// runs in its own transaction together with the version marker it reaches.
func Run[T any](ctx context.Context, target Target[T], plan Plan[T], env Env) error {
	log := env.logger()

	v, err := target.Versions(ctx)
	if err != nil {
		return err
	}
	status, msg := plan.Status(v)
	switch status {
	case models.FormatUnsupported:
		return fmt.Errorf("%w: %s", apperr.ErrUnsupportedFormat, msg)
	case models.FormatUpToDate:
		return nil
	}

	for version := v.Format; version < plan.Current; {
		step, ok := plan.step(version)
		if !ok {
			return fmt.Errorf("%w: no step from version %d", apperr.ErrMigrationFailed, version)
		}
		log.Info("migrate: applying step",
			slog.Int("from", step.From),
			slog.Int("to", step.To),
			slog.String("name", step.Name))

		err := target.InTx(ctx, func(tx T) error {
			if err := step.Apply(ctx, tx, env); err != nil {
				return err
			}
			return target.WriteVersions(ctx, tx, Versions{
				Format:      step.To,
				WriteCompat: step.To,
				ReadCompat:  min(step.To, plan.ReadCompat),
			})
		})
		if err != nil {
			return fmt.Errorf("%w: step %d->%d (%s): %w", apperr.ErrMigrationFailed, step.From, step.To, step.Name, err)
		}
		version = step.To
	}

	err = target.InTx(ctx, func(tx T) error {
		return target.WriteVersions(ctx, tx, Versions{
			Format:      plan.Current,
			WriteCompat: plan.Current,
			ReadCompat:  plan.ReadCompat,
		})
	})
	if err != nil {
		return fmt.Errorf("%w: write version markers: %w", apperr.ErrMigrationFailed, err)
	}
	log.Info("migrate: complete", slog.Int("version", plan.Current))
	return nil
}
