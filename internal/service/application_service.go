package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/uniosun/tacdra-api/internal/dto"
	"github.com/uniosun/tacdra-api/internal/models"
	"github.com/uniosun/tacdra-api/internal/repository"
	appErrors "github.com/uniosun/tacdra-api/pkg/errors"
	"github.com/uniosun/tacdra-api/pkg/export"
)

type applicationStore interface {
	Create(ctx context.Context, app *models.Application) error
	GetByID(ctx context.Context, id string) (*models.Application, error)
	GetByTrackingCode(ctx context.Context, code string) (*models.Application, error)
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error)
	UpdateStatus(ctx context.Context, params repository.StatusUpdateParams) error
	AppendNote(ctx context.Context, note *models.ApplicationNote) error
	ListNotes(ctx context.Context, applicationID string) ([]models.ApplicationNote, error)
	CountByStatus(ctx context.Context) (map[models.ApplicationStatus]int, error)
}

type auditWriter interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

type statusNotifier interface {
	NotifyStatusChange(app *models.Application, event models.NotificationEvent, note string)
}

type statusCache interface {
	GetStatus(ctx context.Context, code string) (*models.PublicStatusView, bool)
	SetStatus(ctx context.Context, code string, view *models.PublicStatusView)
	Invalidate(ctx context.Context, code string)
}

type codeGenerator interface {
	Generate() string
}

type workflowMetrics interface {
	RecordSubmission(category models.ApplicationCategory)
	RecordTransition(to models.ApplicationStatus)
	RecordTrackingLookup(hit bool)
}

// ApplicationService is the workflow engine for document requests. All state
// changes go through the transition authority and versioned updates; no other
// code path mutates application status.
type ApplicationService struct {
	repo        applicationStore
	audit       auditWriter
	notifier    statusNotifier
	cache       statusCache
	codes       codeGenerator
	metrics     workflowMetrics
	maxAttempts int
	logger      *zap.Logger
}

// ApplicationServiceOption configures the service.
type ApplicationServiceOption func(*ApplicationService)

// WithStatusNotifier wires the outbound notification dispatcher.
func WithStatusNotifier(notifier statusNotifier) ApplicationServiceOption {
	return func(s *ApplicationService) {
		if notifier != nil {
			s.notifier = notifier
		}
	}
}

// WithStatusCache wires the public tracking cache.
func WithStatusCache(cache statusCache) ApplicationServiceOption {
	return func(s *ApplicationService) {
		if cache != nil {
			s.cache = cache
		}
	}
}

// WithWorkflowMetrics wires Prometheus counters for the workflow.
func WithWorkflowMetrics(metrics workflowMetrics) ApplicationServiceOption {
	return func(s *ApplicationService) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// WithCodeAttempts overrides how many tracking code collisions are retried.
func WithCodeAttempts(attempts int) ApplicationServiceOption {
	return func(s *ApplicationService) {
		if attempts > 0 {
			s.maxAttempts = attempts
		}
	}
}

// NewApplicationService constructs the workflow engine.
func NewApplicationService(repo applicationStore, audit auditWriter, codes codeGenerator, logger *zap.Logger, opts ...ApplicationServiceOption) *ApplicationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ApplicationService{
		repo:        repo,
		audit:       audit,
		codes:       codes,
		maxAttempts: 5,
		logger:      logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Submit validates the request, prices it from the fixed fee schedule and
// persists the application in payment-pending with a fresh tracking code.
// Nothing is stored when validation fails.
func (s *ApplicationService) Submit(ctx context.Context, req dto.CreateApplicationRequest, requesterID string) (*models.Application, error) {
	if err := ValidateSubmission(req); err != nil {
		return nil, err
	}

	var subtype models.TranscriptType
	var subtypePtr *models.TranscriptType
	if req.Category == models.CategoryTranscript {
		subtype = req.TranscriptType
		subtypePtr = &subtype
	}

	amount, err := ComputeFee(req.Category, subtype, req.DeliveryMethod)
	if err != nil {
		return nil, err
	}
	days := defaultProcessingDays(req.Category, subtypePtr)

	app := &models.Application{
		Category:           req.Category,
		TranscriptType:     subtypePtr,
		DeliveryMethod:     req.DeliveryMethod,
		Status:             models.StatusPaymentPending,
		Amount:             amount,
		Purpose:            optionalString(req.Purpose),
		RecipientName:      optionalString(req.RecipientName),
		RecipientEmail:     optionalString(req.RecipientEmail),
		RecipientAddress:   optionalString(req.RecipientAddress),
		InstitutionName:    optionalString(req.InstitutionName),
		InstitutionEmail:   optionalString(req.InstitutionEmail),
		InstitutionAddress: optionalString(req.InstitutionAddress),
		ProcessingDays:     &days,
		RequesterID:        requesterID,
	}

	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		app.TrackingCode = s.codes.Generate()
		err = s.repo.Create(ctx, app)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrDuplicateTrackingCode) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create application")
		}
		s.logger.Warn("tracking code collision, regenerating",
			zap.String("tracking_code", app.TrackingCode),
			zap.Int("attempt", attempt+1))
	}
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "could not allocate a unique tracking code")
	}

	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &requesterID,
		Action:     models.AuditActionApplicationSubmit,
		Resource:   "application",
		ResourceID: &app.ID,
		NewValues:  mustJSON(map[string]interface{}{"status": app.Status, "tracking_code": app.TrackingCode, "amount": app.Amount}),
	})
	s.notify(app, models.NotificationSubmitted, "")
	if s.metrics != nil {
		s.metrics.RecordSubmission(app.Category)
	}
	return app, nil
}

// ConfirmPayment moves a payment-pending application into processing and marks
// it paid. Calling it again after the first confirmation is a no-op returning
// the already-confirmed application.
func (s *ApplicationService) ConfirmPayment(ctx context.Context, applicationID string, paidAt time.Time) (*models.Application, error) {
	app, err := s.loadApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app.IsPaid {
		return app, nil
	}
	if app.Status != models.StatusPaymentPending {
		return nil, appErrors.Clone(appErrors.ErrConflict,
			fmt.Sprintf("cannot confirm payment in status %s", app.Status))
	}

	paid := true
	at := paidAt.UTC()
	params := repository.StatusUpdateParams{
		ID:              app.ID,
		ExpectedVersion: app.Version,
		Status:          models.StatusProcessing,
		IsPaid:          &paid,
		PaidAt:          &at,
	}
	if err := s.repo.UpdateStatus(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "application was modified concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to confirm payment")
	}

	app.Status = models.StatusProcessing
	app.IsPaid = true
	app.PaidAt = &at
	app.Version++

	s.invalidate(ctx, app.TrackingCode)
	s.emitAudit(ctx, &models.AuditLog{
		Action:     models.AuditActionPaymentConfirm,
		Resource:   "application",
		ResourceID: &app.ID,
		NewValues:  mustJSON(map[string]interface{}{"status": app.Status, "is_paid": true}),
	})
	s.notify(app, models.NotificationPaymentOK, "")
	if s.metrics != nil {
		s.metrics.RecordTransition(app.Status)
	}
	return app, nil
}

// Transition applies a reviewer decision. The transition authority is
// consulted first; a denied move fails with ForbiddenError naming the role and
// both states. Concurrent conflicting transitions resolve to exactly one
// winner via the version guard.
func (s *ApplicationService) Transition(ctx context.Context, applicationID string, req dto.TransitionRequest, actor *models.JWTClaims) (*models.Application, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	app, err := s.loadApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrTerminalState,
			fmt.Sprintf("application is in terminal status %s", app.Status))
	}
	if !app.IsPaid {
		return nil, appErrors.ErrPaymentNotVerified
	}
	if !IsTransitionAllowed(app.Status, req.Status, actor.Role) {
		return nil, appErrors.Clone(appErrors.ErrForbidden,
			fmt.Sprintf("role %s may not move application from %s to %s", actor.Role, app.Status, req.Status))
	}
	return s.applyTransition(ctx, app, req.Status, req.Note, nil, actor)
}

// Finalize moves an application out of exams-records-processing into the
// terminal status determined by its delivery method. Courier dispatches
// record the courier tracking reference when one is supplied.
func (s *ApplicationService) Finalize(ctx context.Context, applicationID string, req dto.FinalizeRequest, actor *models.JWTClaims) (*models.Application, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	app, err := s.loadApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	target := FinalStatusForDelivery(app.DeliveryMethod)
	if !IsTransitionAllowed(app.Status, target, actor.Role) {
		return nil, appErrors.Clone(appErrors.ErrForbidden,
			fmt.Sprintf("role %s may not move application from %s to %s", actor.Role, app.Status, target))
	}
	var courierRef *string
	if ref := strings.TrimSpace(req.CourierReference); ref != "" {
		if target != models.StatusDispatched {
			return nil, appErrors.Clone(appErrors.ErrValidation, "courier reference applies only to courier deliveries")
		}
		courierRef = &ref
	}
	return s.applyTransition(ctx, app, target, req.Note, courierRef, actor)
}

// Cancel withdraws the application on the requester's behalf. Only allowed
// while no review desk has touched it; the application lands in rejected.
func (s *ApplicationService) Cancel(ctx context.Context, applicationID, requesterID string) (*models.Application, error) {
	app, err := s.loadApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app.RequesterID != requesterID {
		return nil, appErrors.ErrForbidden
	}
	if !Cancellable(app.Status) {
		return nil, appErrors.Clone(appErrors.ErrConflict,
			fmt.Sprintf("application can no longer be cancelled in status %s", app.Status))
	}

	params := repository.StatusUpdateParams{
		ID:              app.ID,
		ExpectedVersion: app.Version,
		Status:          models.StatusRejected,
	}
	if err := s.repo.UpdateStatus(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "application was modified concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel application")
	}
	prev := app.Status
	app.Status = models.StatusRejected
	app.Version++

	s.appendNote(ctx, app.ID, &requesterID, "Application cancelled by requester")
	s.invalidate(ctx, app.TrackingCode)
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &requesterID,
		Action:     models.AuditActionStatusTransition,
		Resource:   "application",
		ResourceID: &app.ID,
		OldValues:  mustJSON(map[string]interface{}{"status": prev}),
		NewValues:  mustJSON(map[string]interface{}{"status": app.Status}),
	})
	s.notify(app, models.NotificationRejected, "Application cancelled by requester")
	if s.metrics != nil {
		s.metrics.RecordTransition(app.Status)
	}
	return app, nil
}

// Get returns an application enforcing ownership for non-staff actors.
func (s *ApplicationService) Get(ctx context.Context, applicationID string, actor *models.JWTClaims) (*models.Application, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	app, err := s.loadApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if !isStaff(actor.Role) && app.RequesterID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	return app, nil
}

// ListForRequester returns the caller's own applications.
func (s *ApplicationService) ListForRequester(ctx context.Context, requesterID string, query dto.ApplicationQuery) ([]models.Application, int, error) {
	filter := models.ApplicationFilter{
		RequesterID: requesterID,
		Statuses:    query.Statuses,
		Category:    query.Category,
		Page:        query.Page,
		PageSize:    query.PageSize,
	}
	apps, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applications")
	}
	return apps, total, nil
}

// ListReviewQueue returns the applications awaiting the actor's desk.
func (s *ApplicationService) ListReviewQueue(ctx context.Context, actor *models.JWTClaims, query dto.ApplicationQuery) ([]models.Application, int, error) {
	if actor == nil {
		return nil, 0, appErrors.ErrUnauthorized
	}
	statuses := ReviewQueueStatuses(actor.Role)
	if statuses == nil {
		return nil, 0, appErrors.ErrForbidden
	}
	if len(query.Statuses) > 0 {
		statuses = intersectStatuses(statuses, query.Statuses)
		if len(statuses) == 0 {
			return []models.Application{}, 0, nil
		}
	}
	filter := models.ApplicationFilter{
		Statuses: statuses,
		Category: query.Category,
		PaidOnly: true,
		Page:     query.Page,
		PageSize: query.PageSize,
	}
	apps, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list review queue")
	}
	return apps, total, nil
}

// TrackByCode serves the public, unauthenticated tracking view. Responses are
// cached by tracking code and invalidated on every status change.
func (s *ApplicationService) TrackByCode(ctx context.Context, code string) (*models.PublicStatusView, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "tracking code is required")
	}
	if s.cache != nil {
		if view, ok := s.cache.GetStatus(ctx, code); ok {
			if s.metrics != nil {
				s.metrics.RecordTrackingLookup(true)
			}
			return view, nil
		}
	}
	if s.metrics != nil {
		s.metrics.RecordTrackingLookup(false)
	}
	app, err := s.repo.GetByTrackingCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no application matches this tracking code")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up tracking code")
	}
	view := publicView(app)
	if s.cache != nil {
		s.cache.SetStatus(ctx, code, view)
	}
	return view, nil
}

// AddNote appends a staff annotation to the application trail.
func (s *ApplicationService) AddNote(ctx context.Context, applicationID string, req dto.NoteRequest, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if !isStaff(actor.Role) {
		return appErrors.ErrForbidden
	}
	if strings.TrimSpace(req.Body) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "note body is required")
	}
	if _, err := s.loadApplication(ctx, applicationID); err != nil {
		return err
	}
	note := &models.ApplicationNote{
		ApplicationID: applicationID,
		AuthorID:      &actor.UserID,
		Body:          strings.TrimSpace(req.Body),
	}
	if err := s.repo.AppendNote(ctx, note); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to append note")
	}
	return nil
}

// Notes returns the note trail for an application.
func (s *ApplicationService) Notes(ctx context.Context, applicationID string, actor *models.JWTClaims) ([]models.ApplicationNote, error) {
	app, err := s.Get(ctx, applicationID, actor)
	if err != nil {
		return nil, err
	}
	notes, err := s.repo.ListNotes(ctx, app.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notes")
	}
	return notes, nil
}

// ExportReviewQueue renders the actor's review queue as a CSV dataset.
func (s *ApplicationService) ExportReviewQueue(ctx context.Context, actor *models.JWTClaims) (*export.Dataset, error) {
	apps, _, err := s.ListReviewQueue(ctx, actor, dto.ApplicationQuery{PageSize: 100})
	if err != nil {
		return nil, err
	}
	dataset := &export.Dataset{
		Headers: []string{"tracking_code", "category", "delivery_method", "status", "amount", "submitted_at"},
	}
	for _, app := range apps {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"tracking_code":   app.TrackingCode,
			"category":        string(app.Category),
			"delivery_method": string(app.DeliveryMethod),
			"status":          string(app.Status),
			"amount":          app.Amount.StringFixed(2),
			"submitted_at":    app.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return dataset, nil
}

// StatusCounts exposes per-status totals for dashboards and metrics.
func (s *ApplicationService) StatusCounts(ctx context.Context) (map[models.ApplicationStatus]int, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count applications")
	}
	return counts, nil
}

func (s *ApplicationService) applyTransition(ctx context.Context, app *models.Application, target models.ApplicationStatus, note string, courierRef *string, actor *models.JWTClaims) (*models.Application, error) {
	params := repository.StatusUpdateParams{
		ID:               app.ID,
		ExpectedVersion:  app.Version,
		Status:           target,
		CourierReference: courierRef,
	}
	if err := s.repo.UpdateStatus(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "application was modified concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply transition")
	}
	prev := app.Status
	app.Status = target
	app.Version++
	if courierRef != nil {
		app.CourierReference = courierRef
	}

	trail := fmt.Sprintf("Status changed from %s to %s", prev, target)
	if strings.TrimSpace(note) != "" {
		trail = trail + ": " + strings.TrimSpace(note)
	}
	s.appendNote(ctx, app.ID, &actor.UserID, trail)
	s.invalidate(ctx, app.TrackingCode)
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionStatusTransition,
		Resource:   "application",
		ResourceID: &app.ID,
		OldValues:  mustJSON(map[string]interface{}{"status": prev}),
		NewValues:  mustJSON(map[string]interface{}{"status": target, "actor_role": actor.Role}),
	})
	s.notify(app, eventForStatus(target), note)
	if s.metrics != nil {
		s.metrics.RecordTransition(target)
	}
	return app, nil
}

func (s *ApplicationService) loadApplication(ctx context.Context, id string) (*models.Application, error) {
	app, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	return app, nil
}

func (s *ApplicationService) appendNote(ctx context.Context, applicationID string, authorID *string, body string) {
	note := &models.ApplicationNote{
		ApplicationID: applicationID,
		AuthorID:      authorID,
		Body:          body,
	}
	if err := s.repo.AppendNote(ctx, note); err != nil {
		s.logger.Warn("failed to append application note", zap.Error(err), zap.String("application_id", applicationID))
	}
}

func (s *ApplicationService) invalidate(ctx context.Context, trackingCode string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, trackingCode)
	}
}

func (s *ApplicationService) notify(app *models.Application, event models.NotificationEvent, note string) {
	if s.notifier != nil {
		s.notifier.NotifyStatusChange(app, event, note)
	}
}

func (s *ApplicationService) emitAudit(ctx context.Context, log *models.AuditLog) {
	if s.audit == nil || log == nil {
		return
	}
	log.IPAddress = "system"
	log.UserAgent = "application-service"
	if err := s.audit.Create(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func eventForStatus(status models.ApplicationStatus) models.NotificationEvent {
	switch status {
	case models.StatusRejected:
		return models.NotificationRejected
	case models.StatusReady, models.StatusAvailableForPickup, models.StatusDispatched, models.StatusCompleted:
		return models.NotificationReady
	default:
		return models.NotificationStatusUpdated
	}
}

func publicView(app *models.Application) *models.PublicStatusView {
	view := &models.PublicStatusView{
		TrackingCode:      app.TrackingCode,
		Category:          app.Category,
		TranscriptType:    app.TranscriptType,
		DeliveryMethod:    app.DeliveryMethod,
		Status:            app.Status,
		StatusDescription: StatusDescription(app.Status),
		IsPaid:            app.IsPaid,
		Amount:            app.Amount,
		CreatedAt:         app.CreatedAt,
		UpdatedAt:         app.UpdatedAt,
	}
	if app.ProcessingDays != nil && !app.Status.Terminal() {
		eta := app.CreatedAt.AddDate(0, 0, *app.ProcessingDays).Format("2006-01-02")
		view.EstimatedCompletion = &eta
	}
	return view
}

func isStaff(role models.UserRole) bool {
	for _, staff := range models.StaffRoles {
		if role == staff {
			return true
		}
	}
	return false
}

func intersectStatuses(allowed, requested []models.ApplicationStatus) []models.ApplicationStatus {
	set := make(map[models.ApplicationStatus]bool, len(allowed))
	for _, status := range allowed {
		set[status] = true
	}
	var out []models.ApplicationStatus
	for _, status := range requested {
		if set[status] {
			out = append(out, status)
		}
	}
	return out
}

func optionalString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	v := strings.TrimSpace(value)
	return &v
}

func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
