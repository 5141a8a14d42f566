// Package engine implements the circulation state machine: checkout,
// return with fine computation and reservation promotion, explicit
// reservation, and cancellation. Every operation re-reads current
// state inside a single unit of work and holds no state across calls.
package engine

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/willtech3/circulation-service/internal/errs"
	"github.com/willtech3/circulation-service/internal/model"
	"github.com/willtech3/circulation-service/internal/repository"
)

// Config carries the business knobs. It is immutable after
// construction; there is no ambient global configuration.
type Config struct {
	DailyFineRate float64
	MaxFine       float64
	FineCeiling   float64
	LoanPeriod    time.Duration
}

// Store is the slice of the repository the engine needs: the ability
// to run one atomic unit of work.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, uow repository.UnitOfWork) error) error
}

type Engine struct {
	cfg  Config
	repo Store
	log  *zap.Logger
	now  func() time.Time
}

func New(repo Store, cfg Config, log *zap.Logger) *Engine {
	return &Engine{
		cfg:  cfg,
		repo: repo,
		log:  log.Named("engine"),
		now:  time.Now,
	}
}

// Checkout lends a copy of the item to the patron. When no copy is
// free, a reservation is appended at the queue tail and the checkout
// fails with ErrItemUnavailable; the reservation still commits and is
// reported in the result.
func (e *Engine) Checkout(ctx context.Context, patronID int64, catalogKey string) (model.CheckoutResult, error) {
	var result model.CheckoutResult

	err := e.repo.WithinTx(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
		// WithinTx may re-invoke after a transient rollback; nothing
		// from the discarded attempt can leak into this one
		result = model.CheckoutResult{}

		patron, err := uow.GetPatronForUpdate(ctx, patronID)
		if err != nil {
			return err
		}
		if patron.Status != model.PatronActive || patron.FineBalance > e.cfg.FineCeiling {
			return errs.ErrPatronIneligible
		}

		book, err := uow.GetBookForUpdate(ctx, catalogKey)
		if err != nil {
			return err
		}

		decremented, err := uow.DecrementAvailable(ctx, book.ID)
		if err != nil {
			return err
		}
		if !decremented {
			res, err := e.appendReservation(ctx, uow, patron.ID, book)
			if err != nil {
				return err
			}
			result.Reservation = &res
			return nil
		}

		now := e.now()
		loan, err := uow.CreateLoan(ctx, model.Loan{
			LoanUID:    uuid.NewString(),
			PatronID:   patron.ID,
			BookID:     book.ID,
			CatalogKey: book.CatalogKey,
			CheckoutAt: now,
			DueAt:      now.Add(e.cfg.LoanPeriod),
		})
		if err != nil {
			return err
		}
		if err := uow.BumpCheckoutCount(ctx, patron.ID, 1); err != nil {
			return err
		}
		result.Loan = &loan
		return nil
	})
	if err != nil {
		return model.CheckoutResult{}, err
	}
	if result.Reservation != nil {
		// the reservation committed; the checkout itself is rejected
		return result, errs.ErrItemUnavailable
	}

	e.log.Debug("checkout",
		zap.Int64("patron_id", patronID),
		zap.String("catalog_key", catalogKey),
		zap.String("loan_uid", result.Loan.LoanUID))
	return result, nil
}

// Return closes the loan, computes the fine, frees the copy and, when
// the reservation queue is non-empty, promotes the head reservation
// into a fresh loan within the same unit of work.
func (e *Engine) Return(ctx context.Context, loanUID string, conditionNotes string) (model.ReturnResult, error) {
	var result model.ReturnResult

	err := e.repo.WithinTx(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
		loan, err := uow.GetLoanForUpdate(ctx, loanUID)
		if err != nil {
			return err
		}
		if loan.Returned() {
			return errs.ErrAlreadyReturned
		}

		now := e.now()
		fine := e.fineFor(loan.DueAt, now)

		var notes *string
		if conditionNotes != "" {
			notes = &conditionNotes
		}
		if err := uow.MarkLoanReturned(ctx, loan.ID, now, fine, notes); err != nil {
			return err
		}
		if fine > 0 {
			if err := uow.AddPatronFine(ctx, loan.PatronID, fine); err != nil {
				return err
			}
		}
		if err := uow.BumpCheckoutCount(ctx, loan.PatronID, -1); err != nil {
			return err
		}
		if err := uow.IncrementAvailableCapped(ctx, loan.BookID); err != nil {
			return err
		}

		loan.ReturnedAt = &now
		loan.Fine = fine
		loan.ConditionNotes = notes
		result.Loan = loan
		result.Fine = fine

		promoted, err := e.promoteHead(ctx, uow, loan.BookID, now)
		if err != nil {
			return err
		}
		result.PromotedLoan = promoted
		return nil
	})
	if err != nil {
		return model.ReturnResult{}, err
	}
	return result, nil
}

// Reserve queues an explicit reservation for a fully loaned item.
func (e *Engine) Reserve(ctx context.Context, patronID int64, catalogKey string) (model.Reservation, error) {
	var result model.Reservation

	err := e.repo.WithinTx(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
		if _, err := uow.GetPatronForUpdate(ctx, patronID); err != nil {
			return err
		}
		book, err := uow.GetBookForUpdate(ctx, catalogKey)
		if err != nil {
			return err
		}
		if book.AvailableCount > 0 {
			return errs.ErrAlreadyAvailable
		}

		result, err = e.appendReservation(ctx, uow, patronID, book)
		return err
	})
	if err != nil {
		return model.Reservation{}, err
	}
	return result, nil
}

// CancelReservation removes the patron's own reservation, keeps the
// remaining queue positions contiguous, and reports what was removed.
func (e *Engine) CancelReservation(ctx context.Context, reservationUID string, patronID int64) (model.Reservation, error) {
	var cancelled model.Reservation

	err := e.repo.WithinTx(ctx, func(ctx context.Context, uow repository.UnitOfWork) error {
		res, err := uow.GetReservationForUpdate(ctx, reservationUID)
		if err != nil {
			return err
		}
		if res.PatronID != patronID {
			return errs.ErrForbidden
		}
		if err := uow.DeleteReservation(ctx, res.ID); err != nil {
			return err
		}
		cancelled = res
		return uow.RenumberQueue(ctx, res.BookID, e.now())
	})
	if err != nil {
		return model.Reservation{}, err
	}
	return cancelled, nil
}

func (e *Engine) appendReservation(ctx context.Context, uow repository.UnitOfWork, patronID int64, book model.Book) (model.Reservation, error) {
	length, err := uow.QueueLength(ctx, book.ID, e.now())
	if err != nil {
		return model.Reservation{}, err
	}
	return uow.CreateReservation(ctx, model.Reservation{
		ReservationUID: uuid.NewString(),
		PatronID:       patronID,
		BookID:         book.ID,
		CatalogKey:     book.CatalogKey,
		QueuePosition:  length + 1,
		CreatedAt:      e.now(),
	})
}

// promoteHead converts the head-of-queue reservation into a loan. The
// freshly returned copy goes to the reservation holder, not back to
// the shelf.
func (e *Engine) promoteHead(ctx context.Context, uow repository.UnitOfWork, bookID int64, now time.Time) (*model.Loan, error) {
	head, err := uow.HeadReservation(ctx, bookID, now)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	decremented, err := uow.DecrementAvailable(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if !decremented {
		// the copy we just put back must still be there inside this tx
		return nil, errors.New("promotion: available_count invariant violated")
	}

	loan, err := uow.CreateLoan(ctx, model.Loan{
		LoanUID:    uuid.NewString(),
		PatronID:   head.PatronID,
		BookID:     bookID,
		CatalogKey: head.CatalogKey,
		CheckoutAt: now,
		DueAt:      now.Add(e.cfg.LoanPeriod),
	})
	if err != nil {
		return nil, err
	}
	if err := uow.BumpCheckoutCount(ctx, head.PatronID, 1); err != nil {
		return nil, err
	}
	if err := uow.DeleteReservation(ctx, head.ID); err != nil {
		return nil, err
	}
	if err := uow.RenumberQueue(ctx, bookID, now); err != nil {
		return nil, err
	}

	e.log.Debug("reservation promoted",
		zap.String("reservation_uid", head.ReservationUID),
		zap.String("loan_uid", loan.LoanUID))
	return &loan, nil
}

func (e *Engine) fineFor(dueAt, returnedAt time.Time) float64 {
	if !returnedAt.After(dueAt) {
		return 0
	}
	daysLate := math.Ceil(returnedAt.Sub(dueAt).Hours() / 24)
	return math.Min(daysLate*e.cfg.DailyFineRate, e.cfg.MaxFine)
}
