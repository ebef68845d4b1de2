/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface:
 * parent and student lookups, the fee catalog, student fees and the payment
 * ledger.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - github.com/shopspring/decimal: Money columns.
 * - internal/domain: Domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/schoolfees/payment-service/internal/domain"
	"github.com/shopspring/decimal"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const parentColumns = `id, first_name, COALESCE(middle_name, ''), last_name, COALESCE(email, ''), COALESCE(phone, ''), created_at`

func scanParent(row pgx.Row) (*domain.Parent, error) {
	var p domain.Parent
	if err := row.Scan(&p.ID, &p.FirstName, &p.MiddleName, &p.LastName, &p.Email, &p.Phone, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// FindParentByContact matches a parent by phone number or (case-insensitive) email.
func (r *PostgresRepository) FindParentByContact(ctx context.Context, contact string) (*domain.Parent, error) {
	contact = strings.TrimSpace(contact)
	if contact == "" {
		return nil, ErrParentNotFound
	}
	query := `SELECT ` + parentColumns + ` FROM parents WHERE phone = $1 OR lower(email) = lower($1) ORDER BY created_at LIMIT 1`
	parent, err := scanParent(r.db.QueryRow(ctx, query, contact))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrParentNotFound
		}
		return nil, err
	}
	return parent, nil
}

// FindParentByID retrieves a parent by primary key.
func (r *PostgresRepository) FindParentByID(ctx context.Context, parentID uuid.UUID) (*domain.Parent, error) {
	parent, err := scanParent(r.db.QueryRow(ctx, `SELECT `+parentColumns+` FROM parents WHERE id = $1`, parentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrParentNotFound
		}
		return nil, err
	}
	return parent, nil
}

const studentColumns = `id, parent_id, student_id, first_name, COALESCE(middle_name, ''), last_name, grade, balance, created_at`

func scanStudent(row pgx.Row) (*domain.Student, error) {
	var s domain.Student
	if err := row.Scan(&s.ID, &s.ParentID, &s.StudentCode, &s.FirstName, &s.MiddleName, &s.LastName, &s.Grade, &s.Balance, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// FindStudentByID retrieves a student by primary key.
func (r *PostgresRepository) FindStudentByID(ctx context.Context, studentID uuid.UUID) (*domain.Student, error) {
	student, err := scanStudent(r.db.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, studentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStudentNotFound
		}
		return nil, err
	}
	return student, nil
}

// FindStudentByCode retrieves a student by the school-issued student code.
func (r *PostgresRepository) FindStudentByCode(ctx context.Context, studentCode string) (*domain.Student, error) {
	studentCode = strings.TrimSpace(studentCode)
	if studentCode == "" {
		return nil, ErrStudentNotFound
	}
	student, err := scanStudent(r.db.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE upper(student_id) = upper($1)`, studentCode))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStudentNotFound
		}
		return nil, err
	}
	return student, nil
}

// ListStudentsByParent returns a parent's children ordered by first name.
func (r *PostgresRepository) ListStudentsByParent(ctx context.Context, parentID uuid.UUID) ([]domain.Student, error) {
	rows, err := r.db.Query(ctx, `SELECT `+studentColumns+` FROM students WHERE parent_id = $1 ORDER BY first_name, last_name`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []domain.Student
	for rows.Next() {
		student, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		students = append(students, *student)
	}
	return students, rows.Err()
}

const studentFeeSelect = `
	SELECT sf.id, sf.student_id, sf.fee_type_id, COALESCE(ft.name, ''),
	       sf.academic_year_id, COALESCE(ay.name, ''),
	       sf.academic_term_id, COALESCE(at.name, ''),
	       sf.amount, sf.paid_amount, sf.due_date, sf.status, sf.created_at
	FROM student_fees sf
	LEFT JOIN fee_types ft ON ft.id = sf.fee_type_id
	LEFT JOIN academic_years ay ON ay.id = sf.academic_year_id
	LEFT JOIN academic_terms at ON at.id = sf.academic_term_id`

func scanStudentFee(row pgx.Row) (*domain.StudentFee, error) {
	var f domain.StudentFee
	err := row.Scan(
		&f.ID, &f.StudentID, &f.FeeTypeID, &f.FeeTypeName,
		&f.AcademicYearID, &f.AcademicYearName,
		&f.AcademicTermID, &f.AcademicTermName,
		&f.Amount, &f.PaidAmount, &f.DueDate, &f.Status, &f.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func collectStudentFees(rows pgx.Rows) ([]domain.StudentFee, error) {
	defer rows.Close()
	var fees []domain.StudentFee
	for rows.Next() {
		fee, err := scanStudentFee(rows)
		if err != nil {
			return nil, err
		}
		fees = append(fees, *fee)
	}
	return fees, rows.Err()
}

// ListStudentFees returns all fees of a student ordered by due date.
func (r *PostgresRepository) ListStudentFees(ctx context.Context, studentID uuid.UUID) ([]domain.StudentFee, error) {
	rows, err := r.db.Query(ctx, studentFeeSelect+` WHERE sf.student_id = $1 ORDER BY sf.due_date ASC NULLS LAST, sf.created_at`, studentID)
	if err != nil {
		return nil, err
	}
	return collectStudentFees(rows)
}

// FindStudentFeesByIDs returns the requested fees that belong to the student,
// in due-date order.
func (r *PostgresRepository) FindStudentFeesByIDs(ctx context.Context, studentID uuid.UUID, feeIDs []uuid.UUID) ([]domain.StudentFee, error) {
	if len(feeIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx,
		studentFeeSelect+` WHERE sf.student_id = $1 AND sf.id = ANY($2::uuid[]) ORDER BY sf.due_date ASC NULLS LAST, sf.created_at`,
		studentID, uuidStrings(feeIDs))
	if err != nil {
		return nil, err
	}
	return collectStudentFees(rows)
}

// CreateStudentFee inserts a requested fee in pending status.
func (r *PostgresRepository) CreateStudentFee(ctx context.Context, fee *domain.StudentFee) error {
	if fee.ID == uuid.Nil {
		fee.ID = uuid.New()
	}
	if fee.Status == "" {
		fee.Status = domain.FeeStatusPending
	}
	query := `
		INSERT INTO student_fees (id, student_id, fee_type_id, academic_year_id, academic_term_id, amount, paid_amount, due_date, status)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8)
		RETURNING created_at`
	return r.db.QueryRow(ctx, query,
		fee.ID, fee.StudentID, fee.FeeTypeID, fee.AcademicYearID, fee.AcademicTermID,
		fee.Amount, fee.DueDate, fee.Status,
	).Scan(&fee.CreatedAt)
}

// MarkOverdueFees flags unpaid fees whose due date is before asOf.
func (r *PostgresRepository) MarkOverdueFees(ctx context.Context, asOf time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE student_fees
		SET status = $2
		WHERE due_date < $1::date
		  AND status IN ($3, $4)
		  AND paid_amount < amount`,
		asOf.Format("2006-01-02"), domain.FeeStatusOverdue, domain.FeeStatusPending, domain.FeeStatusPartial)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListFeeTypes returns the fee catalog.
func (r *PostgresRepository) ListFeeTypes(ctx context.Context) ([]domain.FeeType, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, COALESCE(description, '') FROM fee_types ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []domain.FeeType
	for rows.Next() {
		var ft domain.FeeType
		if err := rows.Scan(&ft.ID, &ft.Name, &ft.Description); err != nil {
			return nil, err
		}
		types = append(types, ft)
	}
	return types, rows.Err()
}

// ListAcademicYears returns academic years, most recent first.
func (r *PostgresRepository) ListAcademicYears(ctx context.Context) ([]domain.AcademicYear, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, start_date, end_date, is_current FROM academic_years ORDER BY start_date DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var years []domain.AcademicYear
	for rows.Next() {
		var y domain.AcademicYear
		if err := rows.Scan(&y.ID, &y.Name, &y.StartDate, &y.EndDate, &y.IsCurrent); err != nil {
			return nil, err
		}
		years = append(years, y)
	}
	return years, rows.Err()
}

// ListAcademicTerms returns terms, optionally restricted to one academic year.
func (r *PostgresRepository) ListAcademicTerms(ctx context.Context, academicYearID *uuid.UUID) ([]domain.AcademicTerm, error) {
	query := `SELECT id, academic_year_id, name, start_date, end_date FROM academic_terms`
	var args []interface{}
	if academicYearID != nil {
		query += ` WHERE academic_year_id = $1`
		args = append(args, *academicYearID)
	}
	query += ` ORDER BY start_date`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var terms []domain.AcademicTerm
	for rows.Next() {
		var term domain.AcademicTerm
		if err := rows.Scan(&term.ID, &term.AcademicYearID, &term.Name, &term.StartDate, &term.EndDate); err != nil {
			return nil, err
		}
		terms = append(terms, term)
	}
	return terms, rows.Err()
}

// CreatePayment records the payment, its items and the fee balances it
// settles in a single transaction.
func (r *PostgresRepository) CreatePayment(ctx context.Context, payment *domain.Payment) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var parentID *uuid.UUID
	if payment.ParentID != uuid.Nil {
		parentID = &payment.ParentID
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO payments (id, student_id, parent_id, amount, description, receipt_number, payment_method, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING payment_date`,
		payment.ID, payment.StudentID, parentID, payment.Amount, payment.Description,
		payment.ReceiptNumber, payment.PaymentMethod, payment.Status,
	).Scan(&payment.PaymentDate)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}

	for _, item := range payment.Items {
		var amount, paid decimal.Decimal
		err := tx.QueryRow(ctx,
			`SELECT amount, paid_amount FROM student_fees WHERE id = $1 AND student_id = $2 FOR UPDATE`,
			item.FeeID, payment.StudentID,
		).Scan(&amount, &paid)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("fee %s: %w", item.FeeID, ErrFeeNotFound)
			}
			return err
		}

		if item.Amount.GreaterThan(amount.Sub(paid)) {
			return fmt.Errorf("fee %s: %w", item.FeeID, ErrFeeOverpaid)
		}
		newPaid := paid.Add(item.Amount)
		if _, err := tx.Exec(ctx,
			`UPDATE student_fees SET paid_amount = $2, status = $3 WHERE id = $1`,
			item.FeeID, newPaid, FeeStatusAfterPayment(amount, newPaid),
		); err != nil {
			return fmt.Errorf("update fee %s: %w", item.FeeID, err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO payment_items (payment_id, fee_id, amount) VALUES ($1, $2, $3)`,
			payment.ID, item.FeeID, item.Amount,
		); err != nil {
			return fmt.Errorf("insert payment item: %w", err)
		}
	}

	return tx.Commit(ctx)
}

const paymentColumns = `id, student_id, parent_id, amount, description, receipt_number, payment_method, status, payment_date`

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var p domain.Payment
	var parentID *uuid.UUID
	if err := row.Scan(&p.ID, &p.StudentID, &parentID, &p.Amount, &p.Description, &p.ReceiptNumber, &p.PaymentMethod, &p.Status, &p.PaymentDate); err != nil {
		return nil, err
	}
	if parentID != nil {
		p.ParentID = *parentID
	}
	return &p, nil
}

// FindPaymentByID loads a payment with its items.
func (r *PostgresRepository) FindPaymentByID(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error) {
	payment, err := scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, paymentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}

	rows, err := r.db.Query(ctx, `SELECT payment_id, fee_id, amount FROM payment_items WHERE payment_id = $1`, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var item domain.PaymentItem
		if err := rows.Scan(&item.PaymentID, &item.FeeID, &item.Amount); err != nil {
			return nil, err
		}
		payment.Items = append(payment.Items, item)
	}
	return payment, rows.Err()
}

// ListStudentPayments returns a student's payments, newest first.
func (r *PostgresRepository) ListStudentPayments(ctx context.Context, studentID uuid.UUID) ([]domain.Payment, error) {
	rows, err := r.db.Query(ctx, `SELECT `+paymentColumns+` FROM payments WHERE student_id = $1 ORDER BY payment_date DESC`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *payment)
	}
	return payments, rows.Err()
}

// FeeStatusAfterPayment derives a fee's status from its amount and the total
// paid against it.
func FeeStatusAfterPayment(amount, paid decimal.Decimal) string {
	switch {
	case paid.GreaterThanOrEqual(amount):
		return domain.FeeStatusPaid
	case paid.IsPositive():
		return domain.FeeStatusPartial
	default:
		return domain.FeeStatusPending
	}
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
