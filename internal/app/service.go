/**
 * @description
 * This file contains the core business logic for the payment portal: family
 * lookup, fee and payment queries, fee requests and the payment flow. A payment
 * is committed to the primary store first; accounting synchronization then runs
 * as a side effect whose outcome is reported but never changes the payment.
 *
 * @dependencies
 * - internal/store: Data access.
 * - github.com/google/uuid, github.com/shopspring/decimal: Ids and money.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/schoolfees/payment-service/internal/domain"
	"github.com/schoolfees/payment-service/internal/store"
	"github.com/shopspring/decimal"
)

// Routing keys published on the events exchange.
const (
	RoutingKeyPaymentCompleted = "payment.completed"
	RoutingKeySyncSucceeded    = "accounting.sync.succeeded"
	RoutingKeySyncFailed       = "accounting.sync.failed"
	RoutingKeyWebhookPrefix    = "accounting.webhook."
)

const lookupRateLimitScope = "portal_lookup"

var (
	ErrInvalidPayment = errors.New("invalid payment request")
	ErrInvalidFee     = errors.New("invalid fee request")
	ErrNoStudents     = errors.New("no students found for this parent")
)

// RateLimitError is returned when a caller exceeds the lookup rate limit.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many lookups; retry after %d seconds", e.RetryAfterSeconds)
}

// EventPublisher is the interface for publishing events to the message broker.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// PaymentSyncer synchronizes a committed payment with the accounting service.
type PaymentSyncer interface {
	SyncPayment(ctx context.Context, req domain.SyncRequest) domain.SyncResult
}

// RateLimiter counts events per scope and subject within a window.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Service coordinates the portal operations.
type Service struct {
	repo      store.Repository
	syncer    PaymentSyncer
	publisher EventPublisher
	exchange  string
	logger    *slog.Logger
	now       func() time.Time

	lookupLimiter     RateLimiter
	lookupLimitPerMin int
}

// NewService creates a new payment service instance.
func NewService(repo store.Repository, syncer PaymentSyncer, publisher EventPublisher, exchange string, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		syncer:    syncer,
		publisher: publisher,
		exchange:  exchange,
		logger:    logger.With("component", "payment_service"),
		now:       time.Now,
	}
}

// SetLookupRateLimiter enables per-client throttling of family lookups.
func (s *Service) SetLookupRateLimiter(limiter RateLimiter, perMinute int) {
	s.lookupLimiter = limiter
	s.lookupLimitPerMin = perMinute
}

// LookupFamily resolves a search term to a parent and their children. The
// term is tried as a parent phone or email first, then as a student code.
func (s *Service) LookupFamily(ctx context.Context, term, clientKey string) (*domain.LookupResult, error) {
	if err := s.consumeLookupBudget(ctx, clientKey); err != nil {
		return nil, err
	}

	term = strings.TrimSpace(term)
	if term == "" {
		return nil, store.ErrStudentNotFound
	}

	parent, err := s.repo.FindParentByContact(ctx, term)
	switch {
	case err == nil:
		students, err := s.repo.ListStudentsByParent(ctx, parent.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list students: %w", err)
		}
		if len(students) == 0 {
			return nil, ErrNoStudents
		}
		return &domain.LookupResult{Parent: parent, Students: students}, nil
	case !errors.Is(err, store.ErrParentNotFound):
		return nil, fmt.Errorf("failed to look up parent: %w", err)
	}

	student, err := s.repo.FindStudentByCode(ctx, term)
	if err != nil {
		return nil, err
	}
	parent, err = s.repo.FindParentByID(ctx, student.ParentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load parent of student %s: %w", student.StudentCode, err)
	}
	return &domain.LookupResult{Parent: parent, Students: []domain.Student{*student}}, nil
}

func (s *Service) consumeLookupBudget(ctx context.Context, clientKey string) error {
	if s.lookupLimiter == nil || s.lookupLimitPerMin <= 0 {
		return nil
	}
	count, retryAfter, err := s.lookupLimiter.ConsumeRateLimit(ctx, lookupRateLimitScope, clientKey, s.lookupLimitPerMin, time.Minute)
	if err != nil {
		s.logger.Warn("lookup rate limiter unavailable; allowing request", "error", err)
		return nil
	}
	if count > s.lookupLimitPerMin {
		return &RateLimitError{RetryAfterSeconds: retryAfter}
	}
	return nil
}

// GetStudentFees returns a student's fees ordered by due date.
func (s *Service) GetStudentFees(ctx context.Context, studentID uuid.UUID) ([]domain.StudentFee, error) {
	if _, err := s.repo.FindStudentByID(ctx, studentID); err != nil {
		return nil, err
	}
	return s.repo.ListStudentFees(ctx, studentID)
}

// GetStudentPayments returns a student's payments, newest first.
func (s *Service) GetStudentPayments(ctx context.Context, studentID uuid.UUID) ([]domain.Payment, error) {
	if _, err := s.repo.FindStudentByID(ctx, studentID); err != nil {
		return nil, err
	}
	return s.repo.ListStudentPayments(ctx, studentID)
}

func (s *Service) ListFeeTypes(ctx context.Context) ([]domain.FeeType, error) {
	return s.repo.ListFeeTypes(ctx)
}

func (s *Service) ListAcademicYears(ctx context.Context) ([]domain.AcademicYear, error) {
	return s.repo.ListAcademicYears(ctx)
}

func (s *Service) ListAcademicTerms(ctx context.Context, academicYearID *uuid.UUID) ([]domain.AcademicTerm, error) {
	return s.repo.ListAcademicTerms(ctx, academicYearID)
}

// RequestFee attaches a new pending fee to a student.
func (s *Service) RequestFee(ctx context.Context, studentID uuid.UUID, req domain.RequestFeeRequest) (*domain.StudentFee, error) {
	if req.FeeTypeID == uuid.Nil {
		return nil, fmt.Errorf("%w: fee type is required", ErrInvalidFee)
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidFee)
	}
	if _, err := s.repo.FindStudentByID(ctx, studentID); err != nil {
		return nil, err
	}

	fee := &domain.StudentFee{
		StudentID:      studentID,
		FeeTypeID:      req.FeeTypeID,
		AcademicYearID: req.AcademicYearID,
		AcademicTermID: req.AcademicTermID,
		Amount:         req.Amount,
		PaidAmount:     decimal.Zero,
		DueDate:        req.DueDate,
		Status:         domain.FeeStatusPending,
	}
	if err := s.repo.CreateStudentFee(ctx, fee); err != nil {
		return nil, fmt.Errorf("failed to create fee: %w", err)
	}
	return fee, nil
}

// MakePayment commits a payment and then synchronizes it with the accounting
// service. The result is successful whenever the payment was committed.
func (s *Service) MakePayment(ctx context.Context, req domain.MakePaymentRequest) (*domain.PaymentResult, error) {
	if err := validatePaymentRequest(req); err != nil {
		return nil, err
	}

	student, err := s.repo.FindStudentByID(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}
	if req.ParentID != nil && *req.ParentID != student.ParentID {
		return nil, fmt.Errorf("%w: student does not belong to parent", ErrInvalidPayment)
	}
	parent, err := s.repo.FindParentByID(ctx, student.ParentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load parent: %w", err)
	}

	feeIDs := make([]uuid.UUID, 0, len(req.Items))
	for _, item := range req.Items {
		feeIDs = append(feeIDs, item.FeeID)
	}
	fees, err := s.repo.FindStudentFeesByIDs(ctx, student.ID, feeIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load fees: %w", err)
	}
	if err := checkItemsAgainstFees(req.Items, fees); err != nil {
		return nil, err
	}

	paymentID := uuid.New()
	now := s.now()
	payment := &domain.Payment{
		ID:            paymentID,
		StudentID:     student.ID,
		ParentID:      parent.ID,
		Amount:        req.TotalAmount,
		Description:   fmt.Sprintf("Payment for %d item(s)", len(req.Items)),
		ReceiptNumber: receiptNumber(now, paymentID),
		PaymentMethod: domain.PaymentMethodOnline,
		Status:        domain.PaymentStatusCompleted,
	}
	for _, item := range req.Items {
		payment.Items = append(payment.Items, domain.PaymentItem{PaymentID: paymentID, FeeID: item.FeeID, Amount: item.Amount})
	}

	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		if errors.Is(err, store.ErrFeeOverpaid) || errors.Is(err, store.ErrFeeNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayment, err)
		}
		s.logger.Error("failed to record payment", "student_id", student.ID, "error", err)
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}
	s.logger.Info("payment recorded", "payment_id", payment.ID, "student_id", student.ID, "amount", payment.Amount.String(), "receipt", payment.ReceiptNumber)

	s.publish(ctx, RoutingKeyPaymentCompleted, domain.PaymentEvent{
		PaymentID:     payment.ID,
		StudentID:     payment.StudentID,
		ParentID:      payment.ParentID,
		Amount:        payment.Amount,
		ReceiptNumber: payment.ReceiptNumber,
		Timestamp:     now,
	})

	syncReq := domain.SyncRequest{
		PaymentID: payment.ID,
		Parent:    *parent,
		Student:   *student,
		Items:     lineItems(payment.Items, fees),
	}
	result := s.syncSafely(ctx, syncReq)
	s.publishSyncOutcome(ctx, payment.ID, result, false)

	return &domain.PaymentResult{
		Success:       true,
		TransactionID: payment.ID,
		Payment:       payment,
		Accounting:    &result,
	}, nil
}

// ResyncPayment runs one more synchronization attempt for a stored payment.
// It is an operator action for manual reconciliation after a failure.
func (s *Service) ResyncPayment(ctx context.Context, paymentID uuid.UUID) (*domain.SyncResult, error) {
	payment, err := s.repo.FindPaymentByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	student, err := s.repo.FindStudentByID(ctx, payment.StudentID)
	if err != nil {
		return nil, err
	}
	parentID := payment.ParentID
	if parentID == uuid.Nil {
		parentID = student.ParentID
	}
	parent, err := s.repo.FindParentByID(ctx, parentID)
	if err != nil {
		return nil, err
	}

	feeIDs := make([]uuid.UUID, 0, len(payment.Items))
	for _, item := range payment.Items {
		feeIDs = append(feeIDs, item.FeeID)
	}
	fees, err := s.repo.FindStudentFeesByIDs(ctx, student.ID, feeIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load fees: %w", err)
	}

	result := s.syncSafely(ctx, domain.SyncRequest{
		PaymentID: payment.ID,
		Parent:    *parent,
		Student:   *student,
		Items:     lineItems(payment.Items, fees),
	})
	s.publishSyncOutcome(ctx, payment.ID, result, true)
	return &result, nil
}

// MarkOverdueFees flags fees past their due date.
func (s *Service) MarkOverdueFees(ctx context.Context) (int64, error) {
	return s.repo.MarkOverdueFees(ctx, s.now())
}

// syncSafely converts any panic in the synchronization path into a failed
// result so the committed payment is always reported.
func (s *Service) syncSafely(ctx context.Context, req domain.SyncRequest) (result domain.SyncResult) {
	if s.syncer == nil {
		return domain.SyncResult{Status: domain.SyncDisabled}
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("accounting sync panicked", "payment_id", req.PaymentID, "panic", r)
			result = domain.SyncResult{Status: domain.SyncFailed, Error: fmt.Sprintf("unexpected error: %v", r)}
		}
	}()
	return s.syncer.SyncPayment(ctx, req)
}

func (s *Service) publishSyncOutcome(ctx context.Context, paymentID uuid.UUID, result domain.SyncResult, manual bool) {
	var routingKey string
	switch result.Status {
	case domain.SyncSucceeded:
		routingKey = RoutingKeySyncSucceeded
	case domain.SyncFailed:
		routingKey = RoutingKeySyncFailed
	default:
		return
	}
	s.publish(ctx, routingKey, domain.AccountingSyncEvent{
		PaymentID: paymentID,
		Result:    result,
		Manual:    manual,
		Timestamp: s.now(),
	})
}

// PublishWebhookEvent forwards one accounting change notification.
func (s *Service) PublishWebhookEvent(ctx context.Context, entity string, body interface{}) {
	s.publish(ctx, RoutingKeyWebhookPrefix+strings.ToLower(entity), body)
}

func (s *Service) publish(ctx context.Context, routingKey string, body interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, s.exchange, routingKey, body); err != nil {
		s.logger.Warn("event publish failed", "routing_key", routingKey, "error", err)
	}
}

func validatePaymentRequest(req domain.MakePaymentRequest) error {
	if req.StudentID == uuid.Nil {
		return fmt.Errorf("%w: student is required", ErrInvalidPayment)
	}
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrInvalidPayment)
	}

	seen := make(map[uuid.UUID]bool, len(req.Items))
	sum := decimal.Zero
	for _, item := range req.Items {
		if item.FeeID == uuid.Nil {
			return fmt.Errorf("%w: item fee is required", ErrInvalidPayment)
		}
		if seen[item.FeeID] {
			return fmt.Errorf("%w: fee %s listed more than once", ErrInvalidPayment, item.FeeID)
		}
		seen[item.FeeID] = true
		if item.Amount.IsNegative() {
			return fmt.Errorf("%w: item amount must not be negative", ErrInvalidPayment)
		}
		sum = sum.Add(item.Amount)
	}

	if !req.TotalAmount.IsPositive() {
		return fmt.Errorf("%w: total must be positive", ErrInvalidPayment)
	}
	if !sum.Equal(req.TotalAmount) {
		return fmt.Errorf("%w: total %s does not match item sum %s", ErrInvalidPayment, req.TotalAmount, sum)
	}
	return nil
}

func checkItemsAgainstFees(items []domain.PaymentItemRequest, fees []domain.StudentFee) error {
	byID := make(map[uuid.UUID]domain.StudentFee, len(fees))
	for _, fee := range fees {
		byID[fee.ID] = fee
	}
	for _, item := range items {
		fee, ok := byID[item.FeeID]
		if !ok {
			return fmt.Errorf("%w: fee %s: %w", ErrInvalidPayment, item.FeeID, store.ErrFeeNotFound)
		}
		if item.Amount.GreaterThan(fee.Outstanding()) {
			return fmt.Errorf("%w: amount %s exceeds outstanding %s for fee %s", ErrInvalidPayment, item.Amount, fee.Outstanding(), fee.ID)
		}
	}
	return nil
}

// lineItems builds accounting line items in fee due-date order. Each line
// carries the amount paid against that fee in this payment.
func lineItems(items []domain.PaymentItem, fees []domain.StudentFee) []domain.BillLineItem {
	paid := make(map[uuid.UUID]decimal.Decimal, len(items))
	for _, item := range items {
		paid[item.FeeID] = item.Amount
	}

	lines := make([]domain.BillLineItem, 0, len(items))
	for _, fee := range fees {
		amount, ok := paid[fee.ID]
		if !ok {
			continue
		}
		lines = append(lines, domain.BillLineItem{
			FeeID:       fee.ID,
			Amount:      amount,
			DueDate:     fee.DueDate,
			FeeTypeName: fee.FeeTypeName,
		})
	}
	return lines
}

func receiptNumber(now time.Time, paymentID uuid.UUID) string {
	return fmt.Sprintf("RCP%d%s", now.UnixMilli(), strings.ToUpper(paymentID.String()[:4]))
}
