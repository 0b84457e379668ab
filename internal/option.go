package internal

import "io"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	out     io.Writer
	logOut  io.Writer
	pretty  bool
	verbose bool
	quiet   bool
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithOutput sets where command results are written. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(a *application) {
		a.out = w
	}
}

// WithLogOutput sets where logs are written. Defaults to stderr.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOut = w
	}
}

// WithPretty indents JSON results.
func WithPretty(pretty bool) Option {
	return func(a *application) {
		a.pretty = pretty
	}
}

// WithVerbosity overrides the configured log level: verbose forces debug,
// quiet forces error. Verbose wins when both are set.
func WithVerbosity(verbose, quiet bool) Option {
	return func(a *application) {
		a.verbose = verbose
		a.quiet = quiet
	}
}
