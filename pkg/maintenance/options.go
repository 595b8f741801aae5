package maintenance

import "log/slog"

// Option is a functional option for configuring the runner
type Option func(*Runner)

// WithLogger sets the logger for the runner
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.log = logger
		}
	}
}
