// Package service implements the credential registry: onboarding, issuance,
// revocation and tamper checks of worker credentials.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gigsafe/internal/credential/metrics"
	"gigsafe/internal/credential/models"
	id "gigsafe/pkg/domain"
	dErrors "gigsafe/pkg/domain-errors"
	audit "gigsafe/pkg/platform/audit"
	"gigsafe/pkg/platform/keylock"
	"gigsafe/pkg/platform/sentinel"
	txcontext "gigsafe/pkg/platform/tx"
	"gigsafe/pkg/requestcontext"
)

// Store is the worker repository. Implementations return values, never
// shared pointers, and sentinel errors for missing or conflicting records.
type Store interface {
	Create(ctx context.Context, w models.Worker) error
	Update(ctx context.Context, w models.Worker) error
	FindByID(ctx context.Context, workerID id.WorkerID) (models.Worker, error)
	FindByHash(ctx context.Context, hash string) (models.Worker, error)
	List(ctx context.Context) ([]models.Worker, error)
	CountByType(ctx context.Context) (map[models.WorkerType]int, error)
}

// AuditPublisher records the issuance trail. Emit is fail-closed.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
	Track(ctx context.Context, event audit.Event)
}

// TxRunner groups a worker write and its audit entry into one unit of work.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service issues and verifies worker credentials.
type Service struct {
	store   Store
	secret  string
	locks   *keylock.Map
	auditor AuditPublisher
	tx      TxRunner
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTxRunner(tx TxRunner) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

// New constructs a Service. secret is mixed into every credential hash.
func New(store Store, secret string, opts ...Option) *Service {
	s := &Service{
		store:  store,
		secret: secret,
		locks:  keylock.New(),
		tx:     txcontext.NoopRunner{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register stores an onboarding record without issuing a credential.
func (s *Service) Register(ctx context.Context, w models.Worker) (models.Worker, error) {
	registeredAt := w.RegisteredAt
	if registeredAt.IsZero() {
		registeredAt = requestcontext.Now(ctx)
	}
	valid, err := models.NewWorker(w.ID, w.NationalID, w.JoinDate, w.Type, w.Affiliation, registeredAt)
	if err != nil {
		return models.Worker{}, err
	}
	valid.AuthorizationExpiry = w.AuthorizationExpiry
	valid.AePSEnabled = w.AePSEnabled
	valid.HomeLocation = w.HomeLocation
	w = valid

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Create(ctx, w); err != nil {
			return err
		}
		return s.emit(ctx, audit.EventWorkerRegistered, w.ID, string(w.Type))
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return models.Worker{}, dErrors.New(dErrors.CodeConflict, "worker already registered")
		}
		return models.Worker{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register worker")
	}

	s.logger.InfoContext(ctx, "worker registered",
		"worker_id", w.ID,
		"worker_type", w.Type,
		"request_id", requestcontext.RequestID(ctx),
	)
	return w, nil
}

// Get returns a worker by id.
func (s *Service) Get(ctx context.Context, workerID id.WorkerID) (models.Worker, error) {
	w, err := s.store.FindByID(ctx, workerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.Worker{}, models.ErrUnknownWorker
		}
		return models.Worker{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load worker")
	}
	return w, nil
}

// List returns all workers.
func (s *Service) List(ctx context.Context) ([]models.Worker, error) {
	workers, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list workers")
	}
	return workers, nil
}

// CountByType returns worker counts per type.
func (s *Service) CountByType(ctx context.Context) (map[models.WorkerType]int, error) {
	counts, err := s.store.CountByType(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count workers")
	}
	return counts, nil
}

// Issue computes and records the worker's credential. A worker holds at most
// one credential; replacing it goes through Reissue.
func (s *Service) Issue(ctx context.Context, workerID id.WorkerID) (models.Credential, error) {
	unlock := s.locks.Lock(string(workerID))
	defer unlock()

	w, err := s.Get(ctx, workerID)
	if err != nil {
		return models.Credential{}, err
	}
	if w.HasCredential() {
		return models.Credential{}, dErrors.New(dErrors.CodeConflict, "worker already holds a credential; revoke or reissue it")
	}

	var issued models.Worker
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		issued, err = s.writeIssued(ctx, w, audit.EventCredentialIssued)
		return err
	})
	if err != nil {
		return models.Credential{}, txFailure(err, "failed to issue credential")
	}
	s.reportIssued(ctx, issued)
	return models.CredentialFor(issued), nil
}

// writeIssued stamps a fresh credential on w and records it with its audit
// entry. Callers own the transaction.
func (s *Service) writeIssued(ctx context.Context, w models.Worker, event audit.AuditEvent) (models.Worker, error) {
	w.CredentialHash = models.HashWorker(w, s.secret)
	w.IssuedAt = requestcontext.Now(ctx).UTC().Truncate(time.Second)

	if err := s.store.Update(ctx, w); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return models.Worker{}, dErrors.New(dErrors.CodeConflict, "credential hash already registered to another worker")
		}
		return models.Worker{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue credential")
	}
	if err := s.emit(ctx, event, w.ID, ""); err != nil {
		return models.Worker{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue credential")
	}
	return w, nil
}

// Revoke withdraws the worker's credential. Presenting it afterwards yields
// a tampered outcome.
func (s *Service) Revoke(ctx context.Context, workerID id.WorkerID, reason string) error {
	unlock := s.locks.Lock(string(workerID))
	defer unlock()

	w, err := s.Get(ctx, workerID)
	if err != nil {
		return err
	}
	if !w.HasCredential() {
		return dErrors.New(dErrors.CodeInvalidState, "worker holds no credential")
	}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		_, err := s.writeRevoked(ctx, w, reason)
		return err
	})
	if err != nil {
		return txFailure(err, "failed to revoke credential")
	}
	s.reportRevoked(ctx, w.ID, reason)
	return nil
}

func (s *Service) writeRevoked(ctx context.Context, w models.Worker, reason string) (models.Worker, error) {
	w.CredentialHash = ""
	w.IssuedAt = time.Time{}

	if err := s.store.Update(ctx, w); err != nil {
		return models.Worker{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke credential")
	}
	if err := s.emit(ctx, audit.EventCredentialRevoked, w.ID, reason); err != nil {
		return models.Worker{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke credential")
	}
	return w, nil
}

// Reissue revokes any current credential, applies identity corrections and
// issues a fresh credential, all under the worker lock and in one transaction.
// Metrics and logs are emitted only once the transaction commits.
func (s *Service) Reissue(ctx context.Context, workerID id.WorkerID, update models.IdentityUpdate) (models.Credential, error) {
	unlock := s.locks.Lock(string(workerID))
	defer unlock()

	w, err := s.Get(ctx, workerID)
	if err != nil {
		return models.Credential{}, err
	}

	var (
		issued  models.Worker
		revoked bool
	)
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		current := w
		revoked = false
		if current.HasCredential() {
			var err error
			if current, err = s.writeRevoked(ctx, current, "reissue"); err != nil {
				return err
			}
			revoked = true
		}
		var err error
		issued, err = s.writeIssued(ctx, update.Apply(current), audit.EventCredentialReissued)
		return err
	})
	if err != nil {
		return models.Credential{}, txFailure(err, "failed to reissue credential")
	}
	if revoked {
		s.reportRevoked(ctx, w.ID, "reissue")
	}
	s.reportIssued(ctx, issued)
	return models.CredentialFor(issued), nil
}

func (s *Service) reportIssued(ctx context.Context, w models.Worker) {
	s.metrics.IncIssued()
	s.logger.InfoContext(ctx, "credential issued",
		"worker_id", w.ID,
		"requester", requestcontext.Requester(ctx),
		"request_id", requestcontext.RequestID(ctx),
	)
}

func (s *Service) reportRevoked(ctx context.Context, workerID id.WorkerID, reason string) {
	s.metrics.IncRevoked()
	s.logger.InfoContext(ctx, "credential revoked",
		"worker_id", workerID,
		"reason", reason,
		"requester", requestcontext.Requester(ctx),
	)
}

// txFailure keeps domain errors raised inside a transaction and wraps the
// rest, such as commit failures.
func txFailure(err error, msg string) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

// Verify checks a scanned payload against the stored worker record.
// Authentic and Tampered are both returned as results; errors are reserved
// for malformed payloads, unknown workers and infrastructure failures.
func (s *Service) Verify(ctx context.Context, payload string) (models.VerificationResult, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveVerifyLatency(time.Since(start)) }()

	scanned, err := models.ParsePayload(payload)
	if err != nil {
		s.metrics.IncVerification("payload", "malformed")
		return models.VerificationResult{}, err
	}
	w, err := s.Get(ctx, scanned.WorkerID)
	if err != nil {
		if errors.Is(err, models.ErrUnknownWorker) {
			s.metrics.IncVerification("payload", "unknown_worker")
		}
		return models.VerificationResult{}, err
	}
	return s.check(ctx, "payload", w, scanned.Hash), nil
}

// VerifyByHash resolves a credential through the hash index.
func (s *Service) VerifyByHash(ctx context.Context, hash string) (models.VerificationResult, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveVerifyLatency(time.Since(start)) }()

	w, err := s.store.FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.metrics.IncVerification("hash", "not_found")
			return models.VerificationResult{}, models.ErrCredentialNotFound
		}
		return models.VerificationResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve credential hash")
	}
	return s.check(ctx, "hash", w, hash), nil
}

func (s *Service) check(ctx context.Context, method string, w models.Worker, presented string) models.VerificationResult {
	status, reason := models.Check(w, presented, s.secret)
	result := models.VerificationResult{
		Status:     status,
		Reason:     reason,
		Worker:     w,
		Credential: models.CredentialFor(w),
		VerifiedAt: requestcontext.Now(ctx),
	}
	s.metrics.IncVerification(method, string(status))

	if status == models.StatusTampered {
		s.logger.WarnContext(ctx, "credential tampering detected",
			"worker_id", w.ID,
			"reason", reason,
			"method", method,
			"client_ip", requestcontext.ClientIP(ctx),
			"request_id", requestcontext.RequestID(ctx),
		)
		s.track(ctx, audit.EventCredentialTampered, w.ID, reason)
	} else {
		s.track(ctx, audit.EventCredentialVerified, w.ID, "")
	}
	return result
}

func (s *Service) emit(ctx context.Context, event audit.AuditEvent, workerID id.WorkerID, reason string) error {
	if s.auditor == nil {
		return nil
	}
	return s.auditor.Emit(ctx, audit.Event{
		WorkerID: workerID,
		Action:   string(event),
		Reason:   reason,
	})
}

func (s *Service) track(ctx context.Context, event audit.AuditEvent, workerID id.WorkerID, reason string) {
	if s.auditor == nil {
		return
	}
	s.auditor.Track(ctx, audit.Event{
		WorkerID: workerID,
		Action:   string(event),
		Decision: reason,
	})
}
