package service

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"diocese/internal/allocator"
	"diocese/internal/allocator/store"
	"diocese/internal/platform/metrics"
	"diocese/pkg/apperrors"
)

// maxAllocateAttempts bounds the uniqueness-conflict retry loop. Conflicts
// only occur when a counter lags legacy data, so exhausting this budget
// means contention is pathological and the caller should back off.
const maxAllocateAttempts = 5

// Directory is the slice of the entity repository the allocator needs:
// parent validation and the existing codes of a scope for counter seeding.
type Directory interface {
	ParentExists(ctx context.Context, role allocator.Role, parentCode string) (bool, error)
	ListCodes(ctx context.Context, scope allocator.Scope) ([]string, error)
}

// Service derives the next code for an entity role under a parent scope.
type Service struct {
	seq     store.SequenceStore
	dir     Directory
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

func New(seq store.SequenceStore, dir Directory, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		seq:     seq,
		dir:     dir,
		logger:  logger,
		metrics: m,
		tracer:  otel.Tracer("diocese/allocator"),
	}
}

// Allocate mints the next code for role under parentCode. The sequence
// counter is the source of truth; if existing codes are ahead of it (legacy
// data imported past the counter), the counter is re-seeded from the highest
// parsable code and the allocation retried up to maxAllocateAttempts.
func (s *Service) Allocate(ctx context.Context, role allocator.Role, parentCode string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "allocator.Allocate",
		trace.WithAttributes(
			attribute.String("role", string(role)),
			attribute.String("parent_code", parentCode),
		))
	defer span.End()

	if err := s.validateParent(ctx, role, parentCode); err != nil {
		return "", err
	}

	scope := allocator.Scope{Role: role, ParentCode: parentCode}
	for attempt := 1; attempt <= maxAllocateAttempts; attempt++ {
		seq, err := s.seq.Next(ctx, scope)
		if err != nil {
			return "", apperrors.Wrap(err, apperrors.CodeInternal, "advance sequence counter")
		}

		code, err := allocator.Format(role, parentCode, seq)
		if err != nil {
			// FormatOverflow is fatal and must not be retried: every further
			// sequence value overflows too.
			return "", err
		}

		taken, err := s.codeTaken(ctx, scope, code)
		if err != nil {
			return "", err
		}
		if !taken {
			if s.metrics != nil {
				s.metrics.CodesAllocated.WithLabelValues(string(role)).Inc()
			}
			return code, nil
		}

		if s.metrics != nil {
			s.metrics.AllocationConflicts.Inc()
		}
		s.logger.Warn("allocation conflict, reseeding counter",
			"role", role, "parent_code", parentCode, "code", code, "attempt", attempt)
		if err := s.reseed(ctx, scope); err != nil {
			return "", err
		}
	}

	return "", apperrors.Newf(apperrors.CodeRetryExhausted,
		"could not allocate a unique %s code under %q after %d attempts",
		role, parentCode, maxAllocateAttempts)
}

// Parse recovers (role, parentCode, sequence) from a minted code.
func (s *Service) Parse(code string) (allocator.ParsedCode, error) {
	return allocator.Parse(code)
}

func (s *Service) validateParent(ctx context.Context, role allocator.Role, parentCode string) error {
	parentRole := role.ParentRole()
	if parentRole == "" {
		if _, err := allocator.ParseRole(string(role)); err != nil {
			return err
		}
		if parentCode != "" {
			return apperrors.Newf(apperrors.CodeValidation,
				"role %s takes no parent, got %q", role, parentCode)
		}
		return nil
	}

	exists, err := s.dir.ParentExists(ctx, parentRole, parentCode)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "check parent scope")
	}
	if !exists {
		return apperrors.Newf(apperrors.CodeParentNotFound,
			"%s %q does not exist", parentRole, parentCode)
	}
	return nil
}

func (s *Service) codeTaken(ctx context.Context, scope allocator.Scope, code string) (bool, error) {
	existing, err := s.dir.ListCodes(ctx, scope)
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.CodeInternal, "list scope codes")
	}
	for _, c := range existing {
		if c == code {
			return true, nil
		}
	}
	return false, nil
}

// reseed raises the scope counter to the highest sequence among existing
// codes. Codes that don't parse are excluded from the computation and
// reported as anomalies, never used to derive the next value.
func (s *Service) reseed(ctx context.Context, scope allocator.Scope) error {
	existing, err := s.dir.ListCodes(ctx, scope)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "list scope codes")
	}

	var floor int64
	for _, code := range existing {
		parsed, err := allocator.Parse(code)
		if err != nil || parsed.Role != scope.Role || parsed.ParentCode != scope.ParentCode {
			if s.metrics != nil {
				s.metrics.AllocationAnomalies.Inc()
			}
			s.logger.Warn("anomalous code in scope excluded from sequence seeding",
				"code", code, "role", scope.Role, "parent_code", scope.ParentCode)
			continue
		}
		if parsed.Sequence > floor {
			floor = parsed.Sequence
		}
	}

	if err := s.seq.Sync(ctx, scope, floor); err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "reseed sequence counter")
	}
	return nil
}
