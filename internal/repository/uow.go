package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"net"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/willtech3/circulation-service/internal/errs"
	"github.com/willtech3/circulation-service/internal/model"
)

// UnitOfWork exposes the transaction-scoped reads and writes of the
// circulation engine. Every method sees only state committed before
// the transaction began plus this transaction's own writes.
type UnitOfWork interface {
	GetPatronForUpdate(ctx context.Context, id int64) (model.Patron, error)
	GetBookForUpdate(ctx context.Context, catalogKey string) (model.Book, error)
	GetLoanForUpdate(ctx context.Context, loanUID string) (model.Loan, error)
	GetReservationForUpdate(ctx context.Context, reservationUID string) (model.Reservation, error)

	// DecrementAvailable is the serialization point of checkout: the
	// conditional predicate makes a negative count unreachable.
	DecrementAvailable(ctx context.Context, bookID int64) (bool, error)
	IncrementAvailableCapped(ctx context.Context, bookID int64) error

	CreateLoan(ctx context.Context, loan model.Loan) (model.Loan, error)
	MarkLoanReturned(ctx context.Context, loanID int64, returnedAt time.Time, fine float64, notes *string) error

	AddPatronFine(ctx context.Context, patronID int64, amount float64) error
	BumpCheckoutCount(ctx context.Context, patronID int64, delta int) error

	// Queue accounting sees only unexpired reservations, matching
	// HeadReservation's view of the live queue.
	QueueLength(ctx context.Context, bookID int64, now time.Time) (int, error)
	CreateReservation(ctx context.Context, res model.Reservation) (model.Reservation, error)
	HeadReservation(ctx context.Context, bookID int64, now time.Time) (model.Reservation, error)
	DeleteReservation(ctx context.Context, id int64) error
	RenumberQueue(ctx context.Context, bookID int64, now time.Time) error
}

const retryBackoff = 100 * time.Millisecond

// WithinTx runs fn inside one transaction. Transient storage failures
// are retried exactly once after a short backoff; a second failure (or
// any other storage failure) surfaces as *errs.InfraError. Business
// errors returned by fn pass through untouched.
func (r *repository) WithinTx(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error {
	err := r.runTx(ctx, fn)
	if err == nil || isBusiness(err) {
		return err
	}
	if !isTransient(err) {
		return errs.NewInfraError(err)
	}

	r.log.Warn("transient storage failure, retrying once", zap.Error(err))
	select {
	case <-time.After(retryBackoff):
	case <-ctx.Done():
		return errs.NewInfraError(ctx.Err())
	}

	err = r.runTx(ctx, fn)
	if err == nil || isBusiness(err) {
		return err
	}
	return errs.NewInfraError(err)
}

func (r *repository) runTx(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}

	if err := fn(ctx, &unitOfWork{tx: tx, log: r.log}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "commit tx")
}

func isBusiness(err error) bool {
	var vErr *errs.ValidationError
	return errors.Is(err, errs.ErrNotFound) ||
		errors.Is(err, errs.ErrPatronIneligible) ||
		errors.Is(err, errs.ErrItemUnavailable) ||
		errors.Is(err, errs.ErrAlreadyReturned) ||
		errors.Is(err, errs.ErrAlreadyAvailable) ||
		errors.Is(err, errs.ErrForbidden) ||
		errors.As(err, &vErr)
}

func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.SerializationFailure,
			pgerrcode.DeadlockDetected,
			pgerrcode.ConnectionException,
			pgerrcode.ConnectionFailure,
			pgerrcode.ConnectionDoesNotExist,
			pgerrcode.AdminShutdown,
			pgerrcode.CrashShutdown,
			pgerrcode.CannotConnectNow:
			return true
		}
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

type unitOfWork struct {
	tx  *sqlx.Tx
	log *zap.Logger
}

func (u *unitOfWork) GetPatronForUpdate(ctx context.Context, id int64) (model.Patron, error) {
	query, args, err := qb.Select("id", "name", "status", "fine_balance", "checkout_count").
		From(patronsTableName).
		Where(sq.Eq{"id": id}).
		Suffix("for update").
		ToSql()
	if err != nil {
		return model.Patron{}, err
	}

	var patron model.Patron
	if err := u.tx.GetContext(ctx, &patron, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Patron{}, errs.ErrNotFound
		}
		return model.Patron{}, errors.Wrap(err, "GetPatronForUpdate")
	}
	return patron, nil
}

func (u *unitOfWork) GetBookForUpdate(ctx context.Context, catalogKey string) (model.Book, error) {
	query, args, err := qb.Select(bookColumns...).
		From(booksTableName).
		Where(sq.Eq{"catalog_key": catalogKey}).
		Suffix("for update").
		ToSql()
	if err != nil {
		return model.Book{}, err
	}

	var book model.Book
	if err := u.tx.GetContext(ctx, &book, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Book{}, errs.ErrNotFound
		}
		return model.Book{}, errors.Wrap(err, "GetBookForUpdate")
	}
	return book, nil
}

func (u *unitOfWork) GetLoanForUpdate(ctx context.Context, loanUID string) (model.Loan, error) {
	const q = `
	select l.id, loan_uid, patron_id, book_id, b.catalog_key,
	       checkout_at, due_at, returned_at, fine, condition_notes
	from loans l
	join books b on b.id = l.book_id
	where loan_uid = $1
	for update of l`

	var loan model.Loan
	if err := u.tx.GetContext(ctx, &loan, q, loanUID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Loan{}, errs.ErrNotFound
		}
		return model.Loan{}, errors.Wrap(err, "GetLoanForUpdate")
	}
	return loan, nil
}

func (u *unitOfWork) GetReservationForUpdate(ctx context.Context, reservationUID string) (model.Reservation, error) {
	const q = `
	select r.id, reservation_uid, patron_id, book_id, b.catalog_key,
	       queue_position, seq, created_at, expires_at
	from reservations r
	join books b on b.id = r.book_id
	where reservation_uid = $1
	for update of r`

	var res model.Reservation
	if err := u.tx.GetContext(ctx, &res, q, reservationUID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Reservation{}, errs.ErrNotFound
		}
		return model.Reservation{}, errors.Wrap(err, "GetReservationForUpdate")
	}
	return res, nil
}

func (u *unitOfWork) DecrementAvailable(ctx context.Context, bookID int64) (bool, error) {
	res, err := u.tx.ExecContext(ctx, `
	update books set available_count = available_count - 1
	where id = $1 and available_count > 0`, bookID)
	if err != nil {
		return false, errors.Wrap(err, "DecrementAvailable")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "DecrementAvailable rows")
	}
	return n == 1, nil
}

func (u *unitOfWork) IncrementAvailableCapped(ctx context.Context, bookID int64) error {
	// deliberate defensive cap at total_count
	_, err := u.tx.ExecContext(ctx, `
	update books set available_count = least(available_count + 1, total_count)
	where id = $1`, bookID)
	return errors.Wrap(err, "IncrementAvailableCapped")
}

func (u *unitOfWork) CreateLoan(ctx context.Context, loan model.Loan) (model.Loan, error) {
	query, args, err := qb.Insert(loansTableName).
		Columns("loan_uid", "patron_id", "book_id", "checkout_at", "due_at", "fine").
		Values(loan.LoanUID, loan.PatronID, loan.BookID, loan.CheckoutAt, loan.DueAt, loan.Fine).
		Suffix("returning id").
		ToSql()
	if err != nil {
		return model.Loan{}, err
	}

	if err := u.tx.GetContext(ctx, &loan.ID, query, args...); err != nil {
		u.log.Error("CreateLoan", zap.String("q", query), zap.Any("args", args))
		return model.Loan{}, errors.Wrap(err, "CreateLoan")
	}
	return loan, nil
}

func (u *unitOfWork) MarkLoanReturned(ctx context.Context, loanID int64, returnedAt time.Time, fine float64, notes *string) error {
	_, err := u.tx.ExecContext(ctx, `
	update loans set returned_at = $2, fine = $3, condition_notes = $4
	where id = $1 and returned_at is null`, loanID, returnedAt, fine, notes)
	return errors.Wrap(err, "MarkLoanReturned")
}

func (u *unitOfWork) AddPatronFine(ctx context.Context, patronID int64, amount float64) error {
	_, err := u.tx.ExecContext(ctx, `
	update patrons set fine_balance = fine_balance + $2
	where id = $1`, patronID, amount)
	return errors.Wrap(err, "AddPatronFine")
}

func (u *unitOfWork) BumpCheckoutCount(ctx context.Context, patronID int64, delta int) error {
	_, err := u.tx.ExecContext(ctx, `
	update patrons set checkout_count = checkout_count + $2
	where id = $1`, patronID, delta)
	return errors.Wrap(err, "BumpCheckoutCount")
}

func (u *unitOfWork) QueueLength(ctx context.Context, bookID int64, now time.Time) (int, error) {
	var count int
	err := u.tx.GetContext(ctx, &count,
		`select count(*) from reservations
		where book_id = $1 and (expires_at is null or expires_at > $2)`, bookID, now)
	return count, errors.Wrap(err, "QueueLength")
}

func (u *unitOfWork) CreateReservation(ctx context.Context, res model.Reservation) (model.Reservation, error) {
	const q = `
	insert into reservations (reservation_uid, patron_id, book_id, queue_position, created_at, expires_at)
	values ($1, $2, $3, $4, $5, $6)
	returning id, seq`

	row := u.tx.QueryRowContext(ctx, q,
		res.ReservationUID, res.PatronID, res.BookID, res.QueuePosition, res.CreatedAt, res.ExpiresAt)
	if err := row.Scan(&res.ID, &res.Seq); err != nil {
		return model.Reservation{}, errors.Wrap(err, "CreateReservation")
	}
	return res, nil
}

// HeadReservation returns the unexpired head of the queue, FIFO by
// created_at with the insertion sequence breaking ties.
func (u *unitOfWork) HeadReservation(ctx context.Context, bookID int64, now time.Time) (model.Reservation, error) {
	const q = `
	select r.id, reservation_uid, patron_id, book_id, b.catalog_key,
	       queue_position, seq, created_at, expires_at
	from reservations r
	join books b on b.id = r.book_id
	where r.book_id = $1 and (expires_at is null or expires_at > $2)
	order by created_at, seq
	limit 1
	for update of r`

	var res model.Reservation
	if err := u.tx.GetContext(ctx, &res, q, bookID, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Reservation{}, errs.ErrNotFound
		}
		return model.Reservation{}, errors.Wrap(err, "HeadReservation")
	}
	return res, nil
}

func (u *unitOfWork) DeleteReservation(ctx context.Context, id int64) error {
	_, err := u.tx.ExecContext(ctx,
		`delete from reservations where id = $1`, id)
	return errors.Wrap(err, "DeleteReservation")
}

// RenumberQueue keeps positions contiguous over the live queue after a
// removal. Expired rows are left out of the ranking.
func (u *unitOfWork) RenumberQueue(ctx context.Context, bookID int64, now time.Time) error {
	_, err := u.tx.ExecContext(ctx, `
	update reservations r
	set queue_position = ranked.pos
	from (
		select id, row_number() over (order by created_at, seq) as pos
		from reservations
		where book_id = $1 and (expires_at is null or expires_at > $2)
	) ranked
	where r.id = ranked.id`, bookID, now)
	return errors.Wrap(err, "RenumberQueue")
}
