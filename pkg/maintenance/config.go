package maintenance

import "time"

// Config holds the maintenance job settings consumed by NewRunner, loadable
// from the environment with pkg/config.
type Config struct {
	OrphanGrace       time.Duration `env:"MAINTENANCE_ORPHAN_GRACE" envDefault:"1m"`
	Retention         time.Duration `env:"MAINTENANCE_RETENTION" envDefault:"168h"`
	ReconcileSchedule string        `env:"MAINTENANCE_RECONCILE_SCHEDULE" envDefault:"@every 1m"`
	PruneSchedule     string        `env:"MAINTENANCE_PRUNE_SCHEDULE" envDefault:"0 3 * * *"`
}
