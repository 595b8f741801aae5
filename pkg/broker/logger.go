package broker

import (
	"fmt"
	"log/slog"
)

// slogAdapter routes asynq's internal logging through the application logger.
type slogAdapter struct {
	log *slog.Logger
}

func (a *slogAdapter) Debug(args ...any) { a.log.Debug(fmt.Sprint(args...)) }
func (a *slogAdapter) Info(args ...any)  { a.log.Info(fmt.Sprint(args...)) }
func (a *slogAdapter) Warn(args ...any)  { a.log.Warn(fmt.Sprint(args...)) }
func (a *slogAdapter) Error(args ...any) { a.log.Error(fmt.Sprint(args...)) }
func (a *slogAdapter) Fatal(args ...any) { a.log.Error(fmt.Sprint(args...)) }
