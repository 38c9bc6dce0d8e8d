package core

import (
	"context"
	"errors"
	"time"

	"limscore/internal/infra/persistence/memory"
	"limscore/pkg/domain"
)

// ClockFunc supplies the current time for audit stamps and duration math.
type ClockFunc func() time.Time

// ServiceOption customizes a Service at construction time.
type ServiceOption func(*Service)

// WithLogger installs a structured logger.
func WithLogger(logger Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder installs a metrics sink for operation outcomes.
func WithMetricsRecorder(recorder MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer installs a tracer wrapping every service operation.
func WithTracer(tracer Tracer) ServiceOption {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithAuditRecorder installs an audit sink for compliance trails.
func WithAuditRecorder(recorder AuditRecorder) ServiceOption {
	return func(s *Service) {
		if recorder != nil {
			s.audit = recorder
		}
	}
}

// WithClock overrides the service clock, primarily for tests.
func WithClock(clock ClockFunc) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// Service exposes the transactional laboratory operations: sample intake,
// batch workflow, assay and SOP administration, and the user directory.
type Service struct {
	store   domain.PersistentStore
	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
	audit   AuditRecorder
	clock   ClockFunc
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:   store,
		logger:  NoopLogger{},
		metrics: noopMetrics{},
		tracer:  noopTracer{},
		audit:   noopAudit{},
		clock:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service and in-memory store with the given rules engine.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore {
	return s.store
}

// auditedOperations maps instrumented operation names to the entity they act
// on. Operations absent from the table are not audited.
var auditedOperations = map[string]EntityType{
	"register_sample":              EntitySample,
	"update_sample":                EntitySample,
	"create_prep_batch":            EntityPrepBatch,
	"advance_prep_batch":           EntityPrepBatch,
	"record_extraction":            EntityPrepBatch,
	"attach_reagent":               EntityPrepBatch,
	"attach_equipment":             EntityPrepBatch,
	"create_analytical_batch":      EntityAnalyticalBatch,
	"advance_analytical_batch":     EntityAnalyticalBatch,
	"generate_run_sequence":        EntityAnalyticalBatch,
	"record_qc_sample":             EntityAnalyticalBatch,
	"record_calibration":           EntityAnalyticalBatch,
	"record_sample_result":         EntityAnalyticalBatch,
	"ingest_data_file":             EntityAnalyticalBatch,
	"create_assay":                 EntityAssay,
	"update_assay":                 EntityAssay,
	"delete_assay":                 EntityAssay,
	"add_sop_revision":             EntityAssay,
	"activate_sop_revision":        EntityAssay,
	"create_role":                  EntityRole,
	"edit_role":                    EntityRole,
	"delete_role":                  EntityRole,
	"create_user":                  EntityUser,
	"update_user":                  EntityUser,
	"delete_user":                  EntityUser,
	"submit_registration":          EntityPendingUser,
	"approve_user":                 EntityUser,
	"reject_user":                  EntityPendingUser,
	"create_inventory_item":        EntityInventoryItem,
	"update_inventory_item":        EntityInventoryItem,
	"delete_inventory_item":        EntityInventoryItem,
	"create_equipment":             EntityEquipment,
	"update_equipment":             EntityEquipment,
	"delete_equipment":             EntityEquipment,
	"record_equipment_maintenance": EntityEquipment,
}

// run executes fn as a transaction with tracing, metrics, audit, and logging
// wrapped around it. entityID is read after fn completes so callers may point
// it at an id assigned inside the transaction.
func (s *Service) run(ctx context.Context, operation string, entityID *string, fn func(domain.Transaction) error) (Result, error) {
	start := s.clock()
	ctx, span := s.tracer.Start(ctx, operation)
	res, err := s.store.RunInTransaction(ctx, fn)
	duration := s.clock().Sub(start)
	s.metrics.Observe(ctx, operation, err == nil, duration)
	violations := res.Violations
	var blockedErr RuleViolationError
	if errors.As(err, &blockedErr) {
		violations = blockedErr.Result.Violations
	}
	if len(violations) > 0 {
		s.metrics.ObserveViolations(ctx, operation, violations)
	}
	span.End(err)

	id := ""
	if entityID != nil {
		id = *entityID
	}
	s.recordAudit(ctx, operation, id, res, err, duration)

	if err != nil {
		var blocked RuleViolationError
		if errors.As(err, &blocked) {
			s.logger.Warn("operation blocked by rules", "operation", operation, "entity_id", id, "violations", len(blocked.Result.Violations))
		} else {
			s.logger.Error("operation failed", "operation", operation, "entity_id", id, "error", err)
		}
		return res, err
	}
	if warnings := res.Warnings(); len(warnings) > 0 {
		s.logger.Warn("operation committed with warnings", "operation", operation, "entity_id", id, "warnings", len(warnings))
	}
	s.logger.Debug("operation committed", "operation", operation, "entity_id", id)
	return res, err
}

func (s *Service) recordAudit(ctx context.Context, operation, entityID string, res Result, err error, duration time.Duration) {
	entity, ok := auditedOperations[operation]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation:  operation,
		Status:     AuditStatusSuccess,
		Entity:     entity,
		EntityID:   entityID,
		Actor:      ActorFromContext(ctx),
		Violations: res.Violations,
		Duration:   duration,
		OccurredAt: s.clock(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
		var blocked RuleViolationError
		if errors.As(err, &blocked) {
			entry.Status = AuditStatusBlocked
			entry.Violations = blocked.Result.Violations
		}
	}
	s.audit.Record(ctx, entry)
}

type actorContextKey struct{}

// WithActor stamps the acting username onto the context for audit trails and
// authorization checks.
func WithActor(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, username)
}

// ActorFromContext returns the acting username, or empty when unset.
func ActorFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(actorContextKey{}).(string); ok {
		return v
	}
	return ""
}
