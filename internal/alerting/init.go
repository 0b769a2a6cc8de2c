package alerting

import (
	"gorm.io/gorm"

	"github.com/faultwatch/faultwatch/internal/conf"
	"github.com/faultwatch/faultwatch/internal/datastore/v2/repository"
	"github.com/faultwatch/faultwatch/internal/logger"
	"github.com/faultwatch/faultwatch/internal/observability/metrics"
)

// Engine is a Runner together with the background workers it owns.
type Engine struct {
	*Runner
	events *AsyncEventLogger
}

// Initialize wires the alerting engine on db from settings and starts the
// alert log cleanup when a retention is configured. m may be nil.
func Initialize(db *gorm.DB, settings *conf.Settings, m *metrics.AlertingMetrics, log logger.Logger) *Engine {
	log = log.Module("alerting")

	rules := repository.NewAlertRuleRepository(db)
	alerts := repository.NewAlertRepository(db)
	events := NewAsyncEventLogger(repository.NewEventlogRepository(db), log)

	executor := NewQueryExecutor(
		repository.NewRuleQueryRunner(db),
		NewMacroExpander(settings.Alert.Macros.Rule),
		events,
		log,
		settings.Runner.QueryTimeout.Std(),
	)
	contacts := NewContactResolver(repository.NewDirectoryRepository(db), settings.Alert, log)

	runner := NewRunner(Dependencies{
		Rules:    rules,
		Alerts:   alerts,
		Devices:  repository.NewDeviceRepository(db),
		Executor: executor,
		Machine:  NewStateMachine(alerts, contacts, events, log),
		Cache:    NewRuleCache(rules, settings.Runner.RuleCacheTTL.Std()),
		Metrics:  m,
	}, settings.Runner.Concurrency, log)

	runner.StartLogCleanup(settings.Alert.LogRetentionDays)

	log.Info("alerting engine initialized",
		logger.Int("concurrency", settings.Runner.Concurrency),
		logger.Int("macros", len(settings.Alert.Macros.Rule)),
		logger.Int("log_retention_days", settings.Alert.LogRetentionDays))

	return &Engine{Runner: runner, events: events}
}

// Stop stops the log cleanup and flushes pending eventlog entries.
func (e *Engine) Stop() {
	e.Runner.Stop()
	e.events.Close()
}
