/**
 * @description
 * This file defines the `Repository` interface covering every data access
 * operation of the payment service, so business logic can be tested without
 * a database.
 *
 * @dependencies
 * - github.com/google/uuid: Record identifiers.
 * - internal/domain: The service's domain models.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/schoolfees/payment-service/internal/domain"
)

var (
	ErrParentNotFound  = errors.New("parent not found")
	ErrStudentNotFound = errors.New("student not found")
	ErrFeeNotFound     = errors.New("fee not found")
	ErrPaymentNotFound = errors.New("payment not found")
	ErrFeeOverpaid     = errors.New("payment exceeds outstanding fee balance")
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Parents and students
	FindParentByContact(ctx context.Context, contact string) (*domain.Parent, error)
	FindParentByID(ctx context.Context, parentID uuid.UUID) (*domain.Parent, error)
	FindStudentByID(ctx context.Context, studentID uuid.UUID) (*domain.Student, error)
	FindStudentByCode(ctx context.Context, studentCode string) (*domain.Student, error)
	ListStudentsByParent(ctx context.Context, parentID uuid.UUID) ([]domain.Student, error)

	// Fees and catalog
	ListStudentFees(ctx context.Context, studentID uuid.UUID) ([]domain.StudentFee, error)
	FindStudentFeesByIDs(ctx context.Context, studentID uuid.UUID, feeIDs []uuid.UUID) ([]domain.StudentFee, error)
	CreateStudentFee(ctx context.Context, fee *domain.StudentFee) error
	MarkOverdueFees(ctx context.Context, asOf time.Time) (int64, error)
	ListFeeTypes(ctx context.Context) ([]domain.FeeType, error)
	ListAcademicYears(ctx context.Context) ([]domain.AcademicYear, error)
	ListAcademicTerms(ctx context.Context, academicYearID *uuid.UUID) ([]domain.AcademicTerm, error)

	// Payments
	CreatePayment(ctx context.Context, payment *domain.Payment) error
	FindPaymentByID(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error)
	ListStudentPayments(ctx context.Context, studentID uuid.UUID) ([]domain.Payment, error)
}
