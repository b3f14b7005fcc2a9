package data

import (
	"context"
	"encoding/json"
	"time"

	"PolicyLane/internal/model"
	pkgerrors "PolicyLane/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// AuditLog is the GORM model for the resilience_audit_logs table
type AuditLog struct {
	ID        int64     `gorm:"primaryKey;column:id"`
	Function  string    `gorm:"column:function_name;type:varchar(100);not null;index"`
	EventType string    `gorm:"column:event_type;type:varchar(50);not null"`
	Details   string    `gorm:"column:details;type:json"` // JSON string
	Operator  string    `gorm:"column:operator;type:varchar(100);default:'';not null"` // empty = system
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM
func (AuditLog) TableName() string {
	return "resilience_audit_logs"
}

// AuditSink is what the composition root wires as biz.AuditLogger. Either
// the GORM-backed implementation or the log-only noop, depending on
// whether a database is configured.
type AuditSink interface {
	LogCircuitOpened(ctx context.Context, function string, failureCount int, openedAt time.Time)
	LogCircuitRecovered(ctx context.Context, function string, recoverTime time.Duration, probeCount int)
	LogCircuitReset(ctx context.Context, function string, operator string)
	LogConfigOverridden(ctx context.Context, function string, operator string)
	LogInvocation(ctx context.Context, function string, success bool, statusCode int, duration time.Duration)
}

// NewAuditLogger picks the audit implementation: GORM-backed when a
// database is available, log-only otherwise.
func NewAuditLogger(db *gorm.DB, logger log.Logger) AuditSink {
	if db == nil {
		return NewNoopAuditLogger(logger)
	}
	return NewGormAuditLogger(db, logger)
}

// GormAuditLogger persists audit events asynchronously so the request
// path never waits on the database.
type GormAuditLogger struct {
	db      *gorm.DB
	logChan chan *AuditLog
	logger  *log.Helper
}

// NewGormAuditLogger creates a new audit logger with async channel
func NewGormAuditLogger(db *gorm.DB, logger log.Logger) *GormAuditLogger {
	al := &GormAuditLogger{
		db:      db,
		logChan: make(chan *AuditLog, 1000), // Buffer size 1000 to prevent blocking
		logger:  log.NewHelper(logger),
	}

	// Start background goroutine for async logging
	go al.start()

	return al
}

// start processes audit log events from channel
func (a *GormAuditLogger) start() {
	for event := range a.logChan {
		a.write(event)
	}
}

// write inserts one event. Transient failures (deadlock, dropped
// connection) get a single retry; permanent ones are dropped with the
// classification logged.
func (a *GormAuditLogger) write(event *AuditLog) {
	ctx := context.Background()

	err := a.db.WithContext(ctx).Create(event).Error
	if err != nil {
		if dbErr := pkgerrors.ClassifyDBError(err); dbErr.Transient() {
			time.Sleep(100 * time.Millisecond)
			err = a.db.WithContext(ctx).Create(event).Error
		} else {
			a.logger.Errorw("msg", "failed to write audit log",
				"function", event.Function,
				"event_type", event.EventType,
				"error", dbErr)
			return
		}
	}
	if err != nil {
		a.logger.Errorw("msg", "failed to write audit log after retry",
			"function", event.Function,
			"event_type", event.EventType,
			"error", err)
		return
	}

	a.logger.Debugw("msg", "audit log written",
		"function", event.Function,
		"event_type", event.EventType)
}

// enqueue sends an event to the writer goroutine, dropping it when the
// buffer is full. Audit must never block or fail the request path.
func (a *GormAuditLogger) enqueue(event *AuditLog) {
	select {
	case a.logChan <- event:
		// Successfully queued
	default:
		a.logger.Warnw("msg", "audit log channel full, dropping event",
			"function", event.Function,
			"event_type", event.EventType)
	}
}

func (a *GormAuditLogger) marshalDetails(details map[string]interface{}) string {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		a.logger.Errorw("msg", "failed to marshal audit log details", "error", err)
		return "{}"
	}
	return string(detailsJSON)
}

// LogCircuitOpened records a circuit opening for a function.
func (a *GormAuditLogger) LogCircuitOpened(ctx context.Context, function string, failureCount int, openedAt time.Time) {
	a.enqueue(&AuditLog{
		Function:  function,
		EventType: model.AuditEventCircuitOpened,
		Details: a.marshalDetails(map[string]interface{}{
			"failure_count": failureCount,
			"opened_at":     openedAt.UTC().Format(time.RFC3339),
		}),
	})
}

// LogCircuitRecovered records a circuit closing again after probing.
func (a *GormAuditLogger) LogCircuitRecovered(ctx context.Context, function string, recoverTime time.Duration, probeCount int) {
	a.enqueue(&AuditLog{
		Function:  function,
		EventType: model.AuditEventCircuitRecovered,
		Details: a.marshalDetails(map[string]interface{}{
			"recover_time_ms": recoverTime.Milliseconds(),
			"probe_count":     probeCount,
		}),
	})
}

// LogCircuitReset records a manual circuit reset.
func (a *GormAuditLogger) LogCircuitReset(ctx context.Context, function string, operator string) {
	a.enqueue(&AuditLog{
		Function:  function,
		EventType: model.AuditEventCircuitReset,
		Operator:  operator,
		Details:   "{}",
	})
}

// LogConfigOverridden records a runtime RPCConfig override.
func (a *GormAuditLogger) LogConfigOverridden(ctx context.Context, function string, operator string) {
	a.enqueue(&AuditLog{
		Function:  function,
		EventType: model.AuditEventConfigOverridden,
		Operator:  operator,
		Details:   "{}",
	})
}

// LogInvocation records one governed invocation of an audited function.
func (a *GormAuditLogger) LogInvocation(ctx context.Context, function string, success bool, statusCode int, duration time.Duration) {
	a.enqueue(&AuditLog{
		Function:  function,
		EventType: model.AuditEventInvocation,
		Details: a.marshalDetails(map[string]interface{}{
			"success":     success,
			"status_code": statusCode,
			"duration_ms": duration.Milliseconds(),
		}),
	})
}

// NoopAuditLogger writes audit events to the structured log only. Used
// when no audit database is configured.
type NoopAuditLogger struct {
	logger *log.Helper
}

// NewNoopAuditLogger creates a log-only audit logger.
func NewNoopAuditLogger(logger log.Logger) *NoopAuditLogger {
	return &NoopAuditLogger{logger: log.NewHelper(logger)}
}

func (n *NoopAuditLogger) LogCircuitOpened(_ context.Context, function string, failureCount int, openedAt time.Time) {
	n.logger.Infow("msg", "audit: circuit opened",
		"function", function,
		"failure_count", failureCount,
		"opened_at", openedAt.UTC().Format(time.RFC3339))
}

func (n *NoopAuditLogger) LogCircuitRecovered(_ context.Context, function string, recoverTime time.Duration, probeCount int) {
	n.logger.Infow("msg", "audit: circuit recovered",
		"function", function,
		"recover_time_ms", recoverTime.Milliseconds(),
		"probe_count", probeCount)
}

func (n *NoopAuditLogger) LogCircuitReset(_ context.Context, function string, operator string) {
	n.logger.Infow("msg", "audit: circuit reset",
		"function", function,
		"operator", operator)
}

func (n *NoopAuditLogger) LogConfigOverridden(_ context.Context, function string, operator string) {
	n.logger.Infow("msg", "audit: config overridden",
		"function", function,
		"operator", operator)
}

func (n *NoopAuditLogger) LogInvocation(_ context.Context, function string, success bool, statusCode int, duration time.Duration) {
	n.logger.Infow("msg", "audit: rpc invocation",
		"function", function,
		"success", success,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds())
}
