package dispatcher_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/willtech3/circulation-service/internal/dispatcher"
	"github.com/willtech3/circulation-service/internal/errs"
	"github.com/willtech3/circulation-service/internal/model"
)

type stubEngine struct {
	called bool

	checkoutFn func(patronID int64, catalogKey string) (model.CheckoutResult, error)
	returnFn   func(loanUID, notes string) (model.ReturnResult, error)
	reserveFn  func(patronID int64, catalogKey string) (model.Reservation, error)
	cancelFn   func(reservationUID string, patronID int64) (model.Reservation, error)
}

func (s *stubEngine) Checkout(_ context.Context, patronID int64, catalogKey string) (model.CheckoutResult, error) {
	s.called = true
	return s.checkoutFn(patronID, catalogKey)
}

func (s *stubEngine) Return(_ context.Context, loanUID string, notes string) (model.ReturnResult, error) {
	s.called = true
	return s.returnFn(loanUID, notes)
}

func (s *stubEngine) Reserve(_ context.Context, patronID int64, catalogKey string) (model.Reservation, error) {
	s.called = true
	return s.reserveFn(patronID, catalogKey)
}

func (s *stubEngine) CancelReservation(_ context.Context, reservationUID string, patronID int64) (model.Reservation, error) {
	s.called = true
	return s.cancelFn(reservationUID, patronID)
}

type stubCatalog struct {
	called bool

	registerAuthorFn func(name string) (model.Author, error)
	addItemFn        func(req model.AddItemRequest) (model.Book, error)
	updateItemFn     func(req model.UpdateItemRequest) (model.Book, error)
	registerPatronFn func(name string) (model.Patron, error)
	updateStatusFn   func(id int64, status model.PatronStatus) (model.Patron, error)
}

func (s *stubCatalog) RegisterAuthor(_ context.Context, name string) (model.Author, error) {
	s.called = true
	return s.registerAuthorFn(name)
}

func (s *stubCatalog) AddItem(_ context.Context, req model.AddItemRequest) (model.Book, error) {
	s.called = true
	return s.addItemFn(req)
}

func (s *stubCatalog) UpdateItem(_ context.Context, req model.UpdateItemRequest) (model.Book, error) {
	s.called = true
	return s.updateItemFn(req)
}

func (s *stubCatalog) RegisterPatron(_ context.Context, name string) (model.Patron, error) {
	s.called = true
	return s.registerPatronFn(name)
}

func (s *stubCatalog) UpdatePatronStatus(_ context.Context, id int64, status model.PatronStatus) (model.Patron, error) {
	s.called = true
	return s.updateStatusFn(id, status)
}

func newDispatcher(engine *stubEngine, cat *stubCatalog) *dispatcher.Dispatcher {
	if cat == nil {
		cat = &stubCatalog{}
	}
	return dispatcher.New(engine, cat, zap.NewExample())
}

const (
	loanUID = "0b91011f-43a1-4f0e-9f0a-6a2b7d5c3e10"
	resUID  = "5d2f7c9e-1b4a-4e8d-a6c3-0f9e8d7c6b5a"
)

func TestDispatcher_SchemaRejection(t *testing.T) {
	t.Parallel()

	var tests = []struct {
		name      string
		action    string
		arguments string
	}{
		{
			name:      "malformed json",
			action:    dispatcher.ActionCheckout,
			arguments: `{"patron_id":`,
		},
		{
			name:      "missing patron",
			action:    dispatcher.ActionCheckout,
			arguments: `{"catalog_key":"9780000000001"}`,
		},
		{
			name:      "catalog key wrong length",
			action:    dispatcher.ActionCheckout,
			arguments: `{"patron_id":1,"catalog_key":"978"}`,
		},
		{
			name:      "catalog key not numeric",
			action:    dispatcher.ActionCheckout,
			arguments: `{"patron_id":1,"catalog_key":"97800000000ab"}`,
		},
		{
			name:      "negative patron",
			action:    dispatcher.ActionReserve,
			arguments: `{"patron_id":-3,"catalog_key":"9780000000001"}`,
		},
		{
			name:      "loan id not a uuid",
			action:    dispatcher.ActionReturn,
			arguments: `{"loan_id":"42"}`,
		},
		{
			name:      "empty arguments",
			action:    dispatcher.ActionCancel,
			arguments: ``,
		},
		{
			name:      "author name required",
			action:    dispatcher.ActionRegisterAuthor,
			arguments: `{}`,
		},
		{
			name:      "item total count required",
			action:    dispatcher.ActionAddItem,
			arguments: `{"catalog_key":"9780000000001","name":"n","author_id":1,"genre":"g"}`,
		},
		{
			name:      "unknown patron status",
			action:    dispatcher.ActionUpdatePatronStatus,
			arguments: `{"patron_id":7,"status":"banned"}`,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			engine := &stubEngine{}
			d := newDispatcher(engine, nil)

			resp, code := d.Dispatch(context.Background(), tt.action, json.RawMessage(tt.arguments))

			require.Equal(t, http.StatusBadRequest, code)
			require.NotNil(t, resp.Error)
			require.Equal(t, errs.CodeValidation, resp.Error.Code)
			require.Nil(t, resp.Result)
			require.False(t, engine.called, "schema failures must not reach the engine")
		})
	}
}

func TestDispatcher_UnknownAction(t *testing.T) {
	t.Parallel()
	engine := &stubEngine{}
	d := newDispatcher(engine, nil)

	resp, code := d.Dispatch(context.Background(), "burn_item", json.RawMessage(`{}`))

	require.Equal(t, http.StatusNotFound, code)
	require.NotNil(t, resp.Error)
	require.Equal(t, errs.CodeNotFound, resp.Error.Code)
	require.Equal(t, "unknown action: burn_item", resp.Error.Message)
	require.False(t, engine.called)
}

func TestDispatcher_Checkout(t *testing.T) {
	t.Parallel()

	t.Run("success wraps the loan", func(t *testing.T) {
		t.Parallel()
		engine := &stubEngine{
			checkoutFn: func(patronID int64, catalogKey string) (model.CheckoutResult, error) {
				require.Equal(t, int64(7), patronID)
				require.Equal(t, "9780000000001", catalogKey)
				return model.CheckoutResult{Loan: &model.Loan{LoanUID: loanUID, PatronID: 7}}, nil
			},
		}
		d := newDispatcher(engine, nil)

		resp, code := d.Dispatch(context.Background(), dispatcher.ActionCheckout,
			json.RawMessage(`{"patron_id":7,"catalog_key":"9780000000001"}`))

		require.Equal(t, http.StatusOK, code)
		require.Nil(t, resp.Error)
		result, ok := resp.Result.(model.CheckoutResult)
		require.True(t, ok)
		require.Equal(t, loanUID, result.Loan.LoanUID)
	})

	t.Run("unavailable carries the queued reservation", func(t *testing.T) {
		t.Parallel()
		queued := &model.Reservation{ReservationUID: resUID, PatronID: 7, QueuePosition: 2}
		engine := &stubEngine{
			checkoutFn: func(int64, string) (model.CheckoutResult, error) {
				return model.CheckoutResult{Reservation: queued}, errs.ErrItemUnavailable
			},
		}
		d := newDispatcher(engine, nil)

		resp, code := d.Dispatch(context.Background(), dispatcher.ActionCheckout,
			json.RawMessage(`{"patron_id":7,"catalog_key":"9780000000001"}`))

		require.Equal(t, http.StatusConflict, code)
		require.NotNil(t, resp.Error)
		require.Equal(t, errs.CodeItemUnavailable, resp.Error.Code)
		require.Equal(t, queued, resp.Error.Details)
	})
}

func TestDispatcher_Return(t *testing.T) {
	t.Parallel()
	returnedAt := time.Date(2024, 3, 11, 12, 0, 0, 0, time.UTC)
	engine := &stubEngine{
		returnFn: func(uid, notes string) (model.ReturnResult, error) {
			require.Equal(t, loanUID, uid)
			require.Equal(t, "worn cover", notes)
			return model.ReturnResult{
				Loan: model.Loan{LoanUID: uid, ReturnedAt: &returnedAt, Fine: 5.00},
				Fine: 5.00,
			}, nil
		},
	}
	d := newDispatcher(engine, nil)

	resp, code := d.Dispatch(context.Background(), dispatcher.ActionReturn,
		json.RawMessage(`{"loan_id":"`+loanUID+`","condition_notes":"worn cover"}`))

	require.Equal(t, http.StatusOK, code)
	result, ok := resp.Result.(model.ReturnResult)
	require.True(t, ok)
	require.Equal(t, 5.00, result.Fine)
}

func TestDispatcher_Cancel(t *testing.T) {
	t.Parallel()
	engine := &stubEngine{
		cancelFn: func(uid string, patronID int64) (model.Reservation, error) {
			require.Equal(t, resUID, uid)
			require.Equal(t, int64(7), patronID)
			return model.Reservation{ReservationUID: uid, PatronID: patronID}, nil
		},
	}
	d := newDispatcher(engine, nil)

	resp, code := d.Dispatch(context.Background(), dispatcher.ActionCancel,
		json.RawMessage(`{"reservation_id":"`+resUID+`","patron_id":7}`))

	require.Equal(t, http.StatusOK, code)
	result, ok := resp.Result.(model.CancelResult)
	require.True(t, ok)
	require.Equal(t, resUID, result.Cancelled.ReservationUID)
}

func TestDispatcher_CatalogActions(t *testing.T) {
	t.Parallel()

	t.Run("add item", func(t *testing.T) {
		t.Parallel()
		cat := &stubCatalog{
			addItemFn: func(req model.AddItemRequest) (model.Book, error) {
				require.Equal(t, "9780000000001", req.CatalogKey)
				require.Equal(t, 3, req.TotalCount)
				return model.Book{CatalogKey: req.CatalogKey, TotalCount: 3, AvailableCount: 3}, nil
			},
		}
		d := newDispatcher(&stubEngine{}, cat)

		resp, code := d.Dispatch(context.Background(), dispatcher.ActionAddItem,
			json.RawMessage(`{"catalog_key":"9780000000001","name":"The Go Programming Language","author_id":1,"genre":"reference","total_count":3}`))

		require.Equal(t, http.StatusOK, code)
		book, ok := resp.Result.(model.Book)
		require.True(t, ok)
		require.Equal(t, 3, book.AvailableCount)
	})

	t.Run("add item with unknown author", func(t *testing.T) {
		t.Parallel()
		cat := &stubCatalog{
			addItemFn: func(model.AddItemRequest) (model.Book, error) {
				return model.Book{}, errs.ErrNotFound
			},
		}
		d := newDispatcher(&stubEngine{}, cat)

		resp, code := d.Dispatch(context.Background(), dispatcher.ActionAddItem,
			json.RawMessage(`{"catalog_key":"9780000000001","name":"n","author_id":99,"genre":"g","total_count":1}`))

		require.Equal(t, http.StatusNotFound, code)
		require.Equal(t, errs.CodeNotFound, resp.Error.Code)
	})

	t.Run("suspend patron", func(t *testing.T) {
		t.Parallel()
		cat := &stubCatalog{
			updateStatusFn: func(id int64, status model.PatronStatus) (model.Patron, error) {
				require.Equal(t, int64(7), id)
				require.Equal(t, model.PatronSuspended, status)
				return model.Patron{ID: id, Status: status}, nil
			},
		}
		d := newDispatcher(&stubEngine{}, cat)

		resp, code := d.Dispatch(context.Background(), dispatcher.ActionUpdatePatronStatus,
			json.RawMessage(`{"patron_id":7,"status":"suspended"}`))

		require.Equal(t, http.StatusOK, code)
		patron, ok := resp.Result.(model.Patron)
		require.True(t, ok)
		require.Equal(t, model.PatronSuspended, patron.Status)
	})

	t.Run("register author", func(t *testing.T) {
		t.Parallel()
		cat := &stubCatalog{
			registerAuthorFn: func(name string) (model.Author, error) {
				return model.Author{ID: 1, Name: name}, nil
			},
		}
		d := newDispatcher(&stubEngine{}, cat)

		resp, code := d.Dispatch(context.Background(), dispatcher.ActionRegisterAuthor,
			json.RawMessage(`{"name":"Alan Donovan"}`))

		require.Equal(t, http.StatusOK, code)
		author, ok := resp.Result.(model.Author)
		require.True(t, ok)
		require.Equal(t, int64(1), author.ID)
	})
}

func TestDispatcher_ErrorCodes(t *testing.T) {
	t.Parallel()

	var tests = []struct {
		name     string
		err      error
		wantCode string
		wantHTTP int
	}{
		{name: "not found", err: errs.ErrNotFound, wantCode: errs.CodeNotFound, wantHTTP: http.StatusNotFound},
		{name: "ineligible", err: errs.ErrPatronIneligible, wantCode: errs.CodePatronIneligible, wantHTTP: http.StatusUnprocessableEntity},
		{name: "already returned", err: errs.ErrAlreadyReturned, wantCode: errs.CodeAlreadyReturned, wantHTTP: http.StatusConflict},
		{name: "already available", err: errs.ErrAlreadyAvailable, wantCode: errs.CodeAlreadyAvailable, wantHTTP: http.StatusConflict},
		{name: "forbidden", err: errs.ErrForbidden, wantCode: errs.CodeForbidden, wantHTTP: http.StatusForbidden},
		{name: "infra", err: errs.NewInfraError(context.DeadlineExceeded), wantCode: errs.CodeInternal, wantHTTP: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			body, code := dispatcher.ErrorBodyFor(tt.err)
			require.Equal(t, tt.wantCode, body.Code)
			require.Equal(t, tt.wantHTTP, code)
		})
	}
}
