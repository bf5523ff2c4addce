package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"diocese/internal/audit"
	"diocese/internal/directory"
	dirstore "diocese/internal/directory/store"
	"diocese/internal/platform/metrics"
	"diocese/internal/transfer"
	"diocese/internal/transfer/store"
	"diocese/pkg/apperrors"
	"diocese/pkg/platform/tx"
	"diocese/pkg/requestcontext"
)

// idempotencyTTL bounds how long a caller-supplied key replays its result.
const idempotencyTTL = 24 * time.Hour

// Recorder appends audit entries without ever failing the caller.
type Recorder interface {
	Record(ctx context.Context, action audit.Action, entityType, entityID string, oldValue, newValue any)
}

// Coordinator executes transfers. Steps one through five (load, validate,
// history append, person update, headship update) run inside one atomic
// unit; the audit entry is recorded after commit through the ledger's
// non-blocking recorder, so an audit outage can neither block nor roll back
// a transfer, and a failed transfer leaves no audit entry behind.
type Coordinator struct {
	people      dirstore.PersonStore
	zones       dirstore.ZoneStore
	departments dirstore.DepartmentStore
	history     store.HistoryStore
	idempotency store.IdempotencyStore
	recorder    Recorder
	runner      tx.Runner
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
}

type Stores struct {
	People      dirstore.PersonStore
	Zones       dirstore.ZoneStore
	Departments dirstore.DepartmentStore
	History     store.HistoryStore
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithIdempotencyStore enables caller-supplied idempotency keys.
func WithIdempotencyStore(s store.IdempotencyStore) Option {
	return func(c *Coordinator) { c.idempotency = s }
}

// WithMetrics attaches transfer counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

func New(stores Stores, recorder Recorder, runner tx.Runner, logger *slog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		people:      stores.People,
		zones:       stores.Zones,
		departments: stores.Departments,
		history:     stores.History,
		recorder:    recorder,
		runner:      runner,
		logger:      logger,
		tracer:      otel.Tracer("diocese/transfer"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transfer relocates one person. A retransmitted request identical in
// (person, destination zone, destination department, effective date) replays
// the prior outcome without appending a second history entry.
func (c *Coordinator) Transfer(ctx context.Context, req transfer.Request) (transfer.Result, error) {
	ctx, span := c.tracer.Start(ctx, "transfer.Transfer",
		trace.WithAttributes(
			attribute.String("transfer_type", string(req.Type)),
			attribute.String("person_code", req.PersonCode),
			attribute.String("to_zone", req.ToZone),
		))
	defer span.End()

	if err := c.validateRequest(req); err != nil {
		return c.fail(err)
	}

	if c.idempotency != nil && req.IdempotencyKey != "" {
		prior, found, err := c.idempotency.Get(ctx, req.IdempotencyKey)
		if err != nil {
			c.logger.Warn("idempotency lookup failed, falling through to natural key",
				"key", req.IdempotencyKey, "error", err)
		} else if found {
			prior.Replayed = true
			return prior, nil
		}
	}

	var (
		result      transfer.Result
		oldSnapshot directory.Person
		newSnapshot directory.Person
	)
	err := c.runner.RunInTx(tx.WithLockKey(ctx, req.PersonCode), func(ctx context.Context) error {
		applied, err := c.apply(ctx, req)
		if err != nil {
			return err
		}
		result = applied.result
		oldSnapshot = applied.oldSnapshot
		newSnapshot = applied.newSnapshot
		return nil
	})
	if err != nil {
		return c.fail(err)
	}

	if !result.Replayed {
		result.State = transfer.StateLogged
		c.recorder.Record(ctx, audit.ActionTransfer, "person", req.PersonCode, oldSnapshot, transferSnapshot{
			Person: newSnapshot,
			Record: result.Record,
		})
		if c.metrics != nil {
			c.metrics.TransfersCompleted.Inc()
		}
	}
	result.State = transfer.StateComplete

	if c.idempotency != nil && req.IdempotencyKey != "" {
		if err := c.idempotency.Set(ctx, req.IdempotencyKey, result, idempotencyTTL); err != nil {
			c.logger.Warn("idempotency store write failed", "key", req.IdempotencyKey, "error", err)
		}
	}
	return result, nil
}

// History lists a person's transfer records, most recent first.
func (c *Coordinator) History(ctx context.Context, personCode string, transferType transfer.Type) ([]transfer.Record, error) {
	return c.history.ListByPerson(ctx, personCode, transferType)
}

type appliedTransfer struct {
	result      transfer.Result
	oldSnapshot directory.Person
	newSnapshot directory.Person
}

// transferSnapshot is the new-value payload of a transfer audit entry: the
// updated person plus the transfer metadata.
type transferSnapshot struct {
	Person directory.Person `json:"person"`
	Record transfer.Record  `json:"record"`
}

func (c *Coordinator) apply(ctx context.Context, req transfer.Request) (appliedTransfer, error) {
	person, err := c.people.FindByCode(ctx, req.PersonCode)
	if err != nil {
		return appliedTransfer{}, err
	}
	old := person

	if role, bound := req.Type.PersonRole(); bound && person.Role != role {
		return appliedTransfer{}, apperrors.Newf(apperrors.CodeValidation,
			"%s is a %s, not a %s", person.Code, person.Role, role)
	}

	if _, err := c.zones.FindByCode(ctx, req.ToZone); err != nil {
		if apperrors.Is(err, apperrors.CodeNotFound) {
			return appliedTransfer{}, apperrors.Newf(apperrors.CodeValidation,
				"destination zone %s does not exist", req.ToZone)
		}
		return appliedTransfer{}, err
	}

	if req.ToDepartment != "" {
		dept, err := c.departments.FindByCode(ctx, req.ToDepartment)
		if err != nil {
			if apperrors.Is(err, apperrors.CodeNotFound) {
				return appliedTransfer{}, apperrors.Newf(apperrors.CodeValidation,
					"destination department %s does not exist", req.ToDepartment)
			}
			return appliedTransfer{}, err
		}
		if dept.ZoneCode != req.ToZone {
			return appliedTransfer{}, apperrors.Newf(apperrors.CodeValidation,
				"department %s belongs to zone %s, not %s", dept.Code, dept.ZoneCode, req.ToZone)
		}
	}

	// The dedupe lookup runs before the no-op check: once the original
	// request committed, the person already sits in the destination zone, so
	// a retransmission would otherwise be rejected as a no-op instead of
	// replaying the prior record.
	if prior, err := c.history.FindByNaturalKey(ctx, req.NaturalKey()); err == nil {
		return appliedTransfer{
			result: transfer.Result{State: transfer.StateComplete, Record: prior, Replayed: true},
		}, nil
	} else if !apperrors.Is(err, apperrors.CodeNotFound) {
		return appliedTransfer{}, err
	}

	zoneChanges := req.ToZone != person.ZoneCode
	deptChanges := req.ToDepartment != "" && req.ToDepartment != person.DepartmentCode
	if !zoneChanges && !deptChanges {
		return appliedTransfer{}, apperrors.Newf(apperrors.CodeValidation,
			"%s is already in zone %s; nothing to transfer", person.Code, req.ToZone)
	}

	// The version-guarded person update goes first: it is the one step that
	// can fail on a concurrent transfer, and putting it ahead of the history
	// append keeps the in-memory runner failure-atomic too.
	now := requestcontext.Now(ctx).UTC()
	updated := person
	updated.ZoneCode = req.ToZone
	if req.ToDepartment != "" {
		updated.DepartmentCode = req.ToDepartment
	}
	updated.UpdatedAt = now
	if err := c.people.Update(ctx, updated, person.Version); err != nil {
		return appliedTransfer{}, err
	}
	updated.Version = person.Version + 1

	record := transfer.Record{
		ID:             uuid.New(),
		PersonID:       person.ID,
		PersonCode:     person.Code,
		Type:           req.Type,
		FromZone:       person.ZoneCode,
		ToZone:         req.ToZone,
		FromDepartment: person.DepartmentCode,
		ToDepartment:   req.ToDepartment,
		Reason:         req.Reason,
		EffectiveDate:  req.EffectiveDate,
		CreatedAt:      now,
	}
	if err := c.history.Append(ctx, record); err != nil {
		return appliedTransfer{}, err
	}

	if req.Type == transfer.TypeHOD && req.ToDepartment != "" {
		if err := c.departments.SetHead(ctx, req.ToDepartment, person.ID); err != nil {
			return appliedTransfer{}, err
		}
	}

	return appliedTransfer{
		result: transfer.Result{
			State:      transfer.StateApplied,
			Record:     record,
			NewVersion: updated.Version,
		},
		oldSnapshot: old,
		newSnapshot: updated,
	}, nil
}

func (c *Coordinator) validateRequest(req transfer.Request) error {
	if _, err := transfer.ParseType(string(req.Type)); err != nil {
		return err
	}
	if req.PersonCode == "" {
		return apperrors.New(apperrors.CodeValidation, "person_id is required")
	}
	if req.ToZone == "" {
		return apperrors.New(apperrors.CodeValidation, "to_zone_id is required")
	}
	if req.EffectiveDate.IsZero() {
		return apperrors.New(apperrors.CodeValidation, "transfer_date is required")
	}
	return nil
}

func (c *Coordinator) fail(err error) (transfer.Result, error) {
	if c.metrics != nil {
		c.metrics.TransfersRejected.WithLabelValues(string(apperrors.CodeOf(err))).Inc()
	}
	return transfer.Result{State: transfer.StateFailed}, err
}
