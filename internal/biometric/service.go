package biometric

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"vigil/internal/platform/config"
	"vigil/internal/platform/metrics"
	id "vigil/pkg/domain"
	dErrors "vigil/pkg/domain-errors"
	"vigil/pkg/platform/audit"
	"vigil/pkg/sentinel"
)

// EnrollmentStore persists one fallback descriptor per subject. Re-enrollment
// replaces the descriptor wholesale.
type EnrollmentStore interface {
	SetDescriptor(ctx context.Context, subjectID id.SubjectID, descriptor Descriptor) error
	GetDescriptor(ctx context.Context, subjectID id.SubjectID) (Descriptor, error)
	DeleteDescriptor(ctx context.Context, subjectID id.SubjectID) error

	// ListDescriptors returns every enrolled descriptor, for fallback-mode
	// identification.
	ListDescriptors(ctx context.Context) (map[id.SubjectID]Descriptor, error)
}

// Service is the biometric verification adapter. It fronts an external
// recognition backend and degrades to a deterministic content-hash comparator
// when the backend is down, so verification keeps answering instead of
// erroring. Every result names the mode that produced it.
type Service struct {
	backend RecognitionBackend
	store   EnrollmentStore
	cfg     config.Biometric

	// threshold is mutable at runtime via SetThreshold.
	mu        sync.RWMutex
	threshold float64

	logger         *slog.Logger
	auditPublisher audit.Publisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher audit.Publisher) Option {
	return func(s *Service) { s.auditPublisher = publisher }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(backend RecognitionBackend, store EnrollmentStore, cfg config.Biometric, opts ...Option) (*Service, error) {
	if backend == nil {
		return nil, errors.New("recognition backend is required")
	}
	if store == nil {
		return nil, errors.New("enrollment store is required")
	}
	if cfg.SimilarityThreshold < 0.1 || cfg.SimilarityThreshold > 0.9 {
		return nil, ErrInvalidThreshold
	}

	svc := &Service{
		backend:   backend,
		store:     store,
		cfg:       cfg,
		threshold: cfg.SimilarityThreshold,
		tracer:    otel.Tracer("vigil/biometric"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Verify compares the image against the subject's enrollment.
//
// Primary mode asks the external backend for a similarity ranking; fallback
// mode compares content-hash descriptors. A structural backend failure
// (unreachable, 5xx, timed out) does not surface to the caller: the same call
// degrades to fallback and answers, and the result's Mode field is the only
// signal of which path ran. A backend rejection of the request itself is an
// error, never a silent downgrade of assurance.
func (s *Service) Verify(ctx context.Context, subjectID id.SubjectID, image []byte) (*VerifyResult, error) {
	ctx, span := s.tracer.Start(ctx, "biometric.Verify",
		trace.WithAttributes(attribute.String("subject_id", subjectID.String())))
	defer span.End()

	if subjectID.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "subject id cannot be empty")
	}
	if len(image) == 0 {
		return nil, ErrEmptyImage
	}

	enrolled, err := s.store.GetDescriptor(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, ErrNotEnrolled
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load enrollment")
	}

	result, backendErr := s.verifyPrimary(ctx, subjectID, image)
	if backendErr != nil {
		if !structuralFailure(backendErr) {
			return nil, dErrors.Wrap(backendErr, dErrors.CodeInternal, "recognition backend rejected the call")
		}
		span.AddEvent("backend unavailable, degrading to fallback")
		if s.logger != nil {
			s.logger.WarnContext(ctx, "recognition backend unavailable, using fallback comparator",
				"subject_id", subjectID.String(),
				"error", backendErr,
			)
		}
		if s.metrics != nil {
			s.metrics.BackendFallbacks.Inc()
		}
		result = s.verifyFallback(enrolled, image)

		audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
			SubjectID: subjectID,
			Action:    string(audit.EventVerifyFallback),
			Reason:    "backend unavailable",
			Decision:  verdict(result.Verified),
			Mode:      string(ModeFallback),
			Severity:  audit.SeverityWarning,
		})
	}

	span.SetAttributes(
		attribute.String("mode", string(result.Mode)),
		attribute.Bool("verified", result.Verified),
	)
	if s.metrics != nil {
		s.metrics.Verifications.WithLabelValues(string(result.Mode), verdict(result.Verified)).Inc()
	}
	return result, nil
}

// verifyPrimary runs one backend recognition call under the configured
// timeout. Any error here means "backend unusable", never "not a match".
func (s *Service) verifyPrimary(ctx context.Context, subjectID id.SubjectID, image []byte) (*VerifyResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.BackendTimeout)
	defer cancel()

	start := time.Now()
	matches, err := s.backend.Recognize(callCtx, image, 10)
	if s.metrics != nil {
		s.metrics.ObserveBackendLatency(time.Since(start))
	}
	if err != nil {
		return nil, err
	}

	threshold := s.Threshold()
	for _, match := range matches {
		if match.SubjectID != subjectID {
			continue
		}
		return &VerifyResult{
			Verified:   match.Similarity >= threshold,
			Confidence: match.Similarity * 100,
			Mode:       ModePrimary,
		}, nil
	}

	// The backend answered and the subject is not among the candidates.
	return &VerifyResult{Verified: false, Confidence: 0, Mode: ModePrimary}, nil
}

// verifyFallback compares the image's content-hash descriptor against the
// enrolled one. Identical bytes land at distance zero and full confidence.
func (s *Service) verifyFallback(enrolled Descriptor, image []byte) *VerifyResult {
	distance := DescriptorFromImage(image).Distance(enrolled)
	return &VerifyResult{
		Verified:   distance < s.cfg.FallbackMaxDistance,
		Confidence: (1 - math.Min(distance, 1)) * 100,
		Mode:       ModeFallback,
	}
}

// Register enrolls a subject from one or more image samples, replacing any
// existing enrollment in both the backend and the fallback store.
//
// The fallback descriptor is the mean of the per-image descriptors and is
// written first: losing the backend right after Register must still leave the
// subject verifiable in degraded mode. Backend enrollment then runs per image
// concurrently; a backend failure is reported but does not undo the fallback
// enrollment.
func (s *Service) Register(ctx context.Context, subjectID id.SubjectID, images [][]byte) error {
	ctx, span := s.tracer.Start(ctx, "biometric.Register",
		trace.WithAttributes(
			attribute.String("subject_id", subjectID.String()),
			attribute.Int("samples", len(images)),
		))
	defer span.End()

	if subjectID.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "subject id cannot be empty")
	}

	samples := make([][]byte, 0, len(images))
	for _, img := range images {
		if len(img) > 0 {
			samples = append(samples, img)
		}
	}
	if len(samples) == 0 {
		return ErrInsufficientSamples
	}

	_, getErr := s.store.GetDescriptor(ctx, subjectID)
	replaced := getErr == nil

	descriptors := make([]Descriptor, len(samples))
	for i, img := range samples {
		descriptors[i] = DescriptorFromImage(img)
	}
	if err := s.store.SetDescriptor(ctx, subjectID, averageDescriptors(descriptors)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store enrollment descriptor")
	}

	if err := s.enrollBackend(ctx, subjectID, samples); err != nil {
		span.AddEvent("backend enrollment failed")
		if s.logger != nil {
			s.logger.WarnContext(ctx, "backend enrollment failed, fallback enrollment kept",
				"subject_id", subjectID.String(),
				"error", err,
			)
		}
	}

	event := audit.EventEnrollmentCreated
	if replaced {
		event = audit.EventEnrollmentReplaced
	}
	audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
		SubjectID: subjectID,
		Action:    string(event),
		Severity:  audit.SeverityInfo,
	},
		"samples", len(samples),
	)
	return nil
}

// enrollBackend replaces the subject's backend faces: delete everything, then
// add each sample. Adds run concurrently; the first failure cancels the rest.
func (s *Service) enrollBackend(ctx context.Context, subjectID id.SubjectID, samples [][]byte) error {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.BackendTimeout)
	defer cancel()

	if err := s.backend.DeleteFaces(callCtx, subjectID); err != nil {
		return err
	}

	g, gCtx := errgroup.WithContext(callCtx)
	for _, img := range samples {
		g.Go(func() error {
			_, err := s.backend.AddFace(gCtx, subjectID, img)
			return err
		})
	}
	return g.Wait()
}

// Unregister clears the subject's enrollment everywhere. Missing enrollment
// is not an error; the end state is the same.
func (s *Service) Unregister(ctx context.Context, subjectID id.SubjectID) error {
	if subjectID.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "subject id cannot be empty")
	}

	if err := s.store.DeleteDescriptor(ctx, subjectID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete enrollment descriptor")
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.BackendTimeout)
	defer cancel()
	if err := s.backend.DeleteFaces(callCtx, subjectID); err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "backend face deletion failed",
				"subject_id", subjectID.String(),
				"error", err,
			)
		}
	}

	audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
		SubjectID: subjectID,
		Action:    string(audit.EventEnrollmentCleared),
		Severity:  audit.SeverityInfo,
	})
	return nil
}

// Identify ranks enrolled subjects against the image. Primary mode delegates
// the ranking to the backend; fallback mode ranks stored descriptors by
// distance. Results are best-first, at most limit long.
func (s *Service) Identify(ctx context.Context, image []byte, limit int) ([]Match, error) {
	ctx, span := s.tracer.Start(ctx, "biometric.Identify")
	defer span.End()

	if len(image) == 0 {
		return nil, ErrEmptyImage
	}
	if limit <= 0 {
		limit = 10
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.BackendTimeout)
	start := time.Now()
	matches, err := s.backend.Recognize(callCtx, image, limit)
	cancel()
	if s.metrics != nil {
		s.metrics.ObserveBackendLatency(time.Since(start))
	}
	if err == nil {
		span.SetAttributes(attribute.String("mode", string(ModePrimary)))
		return matches, nil
	}
	if !structuralFailure(err) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "recognition backend rejected the call")
	}

	span.AddEvent("backend unavailable, degrading to fallback")
	if s.metrics != nil {
		s.metrics.BackendFallbacks.Inc()
	}

	enrolled, listErr := s.store.ListDescriptors(ctx)
	if listErr != nil {
		return nil, dErrors.Wrap(listErr, dErrors.CodeInternal, "failed to list enrollments")
	}

	probe := DescriptorFromImage(image)
	ranked := make([]Match, 0, len(enrolled))
	for subjectID, descriptor := range enrolled {
		distance := probe.Distance(descriptor)
		if distance >= s.cfg.FallbackMaxDistance {
			continue
		}
		ranked = append(ranked, Match{
			SubjectID:  subjectID,
			Similarity: 1 - math.Min(distance, 1),
		})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].Similarity > ranked[j].Similarity })
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	span.SetAttributes(attribute.String("mode", string(ModeFallback)))
	return ranked, nil
}

// SetThreshold adjusts the primary-mode match bar at runtime. Bounds keep an
// operator from setting a bar that accepts everyone or no one.
func (s *Service) SetThreshold(threshold float64) error {
	if threshold < 0.1 || threshold > 0.9 {
		return ErrInvalidThreshold
	}
	s.mu.Lock()
	s.threshold = threshold
	s.mu.Unlock()
	return nil
}

// Threshold returns the current primary-mode match bar.
func (s *Service) Threshold() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threshold
}

// structuralFailure reports whether a backend error means the backend is
// unusable for this call (unreachable, 5xx, timed out) rather than rejecting
// the request. Only structural failures degrade to the fallback comparator.
func structuralFailure(err error) bool {
	return errors.Is(err, sentinel.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded)
}

func verdict(verified bool) string {
	if verified {
		return "verified"
	}
	return "rejected"
}
