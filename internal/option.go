package internal

import (
	"fmt"

	"github.com/starford/wikistore/internal/wikidata"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config   *Config
	wikiOpts []wikidata.Option
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithWikiOptions passes extra options to the wiki store.
func WithWikiOptions(opts ...wikidata.Option) Option {
	return func(a *application) {
		a.wikiOpts = append(a.wikiOpts, opts...)
	}
}

func newApplication(opts []Option) (*application, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}
