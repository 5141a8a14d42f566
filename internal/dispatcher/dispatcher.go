// Package dispatcher validates action payloads against their declared
// schemas and maps circulation engine outcomes onto the external
// success/error envelope with stable error codes. It is, together with
// the resource router, the only layer that formats user-facing errors.
package dispatcher

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/willtech3/circulation-service/internal/errs"
	"github.com/willtech3/circulation-service/internal/model"
)

const (
	ActionCheckout = "checkout_item"
	ActionReturn   = "return_item"
	ActionReserve  = "reserve_item"
	ActionCancel   = "cancel_reservation"

	ActionRegisterAuthor     = "register_author"
	ActionAddItem            = "add_item"
	ActionUpdateItem         = "update_item"
	ActionRegisterPatron     = "register_patron"
	ActionUpdatePatronStatus = "update_patron_status"
)

type Engine interface {
	Checkout(ctx context.Context, patronID int64, catalogKey string) (model.CheckoutResult, error)
	Return(ctx context.Context, loanUID string, conditionNotes string) (model.ReturnResult, error)
	Reserve(ctx context.Context, patronID int64, catalogKey string) (model.Reservation, error)
	CancelReservation(ctx context.Context, reservationUID string, patronID int64) (model.Reservation, error)
}

type Catalog interface {
	RegisterAuthor(ctx context.Context, name string) (model.Author, error)
	AddItem(ctx context.Context, req model.AddItemRequest) (model.Book, error)
	UpdateItem(ctx context.Context, req model.UpdateItemRequest) (model.Book, error)
	RegisterPatron(ctx context.Context, name string) (model.Patron, error)
	UpdatePatronStatus(ctx context.Context, id int64, status model.PatronStatus) (model.Patron, error)
}

// Response is the action envelope: exactly one of Result / Error set.
type Response struct {
	Result interface{}     `json:"result,omitempty"`
	Error  *errs.ErrorBody `json:"error,omitempty"`
}

type Dispatcher struct {
	engine   Engine
	catalog  Catalog
	validate *validator.Validate
	log      *zap.Logger
}

func New(engine Engine, catalog Catalog, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		engine:   engine,
		catalog:  catalog,
		validate: validator.New(),
		log:      log.Named("dispatcher"),
	}
}

// Dispatch validates the raw arguments and invokes the engine. Schema
// failures never reach the engine or the store. The int is the HTTP
// status the envelope should ride out on.
func (d *Dispatcher) Dispatch(ctx context.Context, action string, arguments json.RawMessage) (Response, int) {
	switch action {
	case ActionCheckout:
		var req model.CheckoutRequest
		if resp, code, ok := d.decode(arguments, &req); !ok {
			return resp, code
		}
		result, err := d.engine.Checkout(ctx, req.PatronID, req.CatalogKey)
		if err != nil {
			body, code := ErrorBodyFor(err)
			if result.Reservation != nil {
				// the queued reservation committed; report it
				body.Details = result.Reservation
			}
			return Response{Error: &body}, code
		}
		return Response{Result: result}, http.StatusOK

	case ActionReturn:
		var req model.ReturnRequest
		if resp, code, ok := d.decode(arguments, &req); !ok {
			return resp, code
		}
		result, err := d.engine.Return(ctx, req.LoanID, req.ConditionNotes)
		if err != nil {
			body, code := ErrorBodyFor(err)
			return Response{Error: &body}, code
		}
		return Response{Result: result}, http.StatusOK

	case ActionReserve:
		var req model.ReserveRequest
		if resp, code, ok := d.decode(arguments, &req); !ok {
			return resp, code
		}
		result, err := d.engine.Reserve(ctx, req.PatronID, req.CatalogKey)
		if err != nil {
			body, code := ErrorBodyFor(err)
			return Response{Error: &body}, code
		}
		return Response{Result: result}, http.StatusOK

	case ActionCancel:
		var req model.CancelReservationRequest
		if resp, code, ok := d.decode(arguments, &req); !ok {
			return resp, code
		}
		cancelled, err := d.engine.CancelReservation(ctx, req.ReservationID, req.PatronID)
		if err != nil {
			body, code := ErrorBodyFor(err)
			return Response{Error: &body}, code
		}
		return Response{Result: model.CancelResult{Cancelled: cancelled}}, http.StatusOK

	case ActionRegisterAuthor:
		var req model.RegisterAuthorRequest
		if resp, code, ok := d.decode(arguments, &req); !ok {
			return resp, code
		}
		result, err := d.catalog.RegisterAuthor(ctx, req.Name)
		if err != nil {
			body, code := ErrorBodyFor(err)
			return Response{Error: &body}, code
		}
		return Response{Result: result}, http.StatusOK

	case ActionAddItem:
		var req model.AddItemRequest
		if resp, code, ok := d.decode(arguments, &req); !ok {
			return resp, code
		}
		result, err := d.catalog.AddItem(ctx, req)
		if err != nil {
			body, code := ErrorBodyFor(err)
			return Response{Error: &body}, code
		}
		return Response{Result: result}, http.StatusOK

	case ActionUpdateItem:
		var req model.UpdateItemRequest
		if resp, code, ok := d.decode(arguments, &req); !ok {
			return resp, code
		}
		result, err := d.catalog.UpdateItem(ctx, req)
		if err != nil {
			body, code := ErrorBodyFor(err)
			return Response{Error: &body}, code
		}
		return Response{Result: result}, http.StatusOK

	case ActionRegisterPatron:
		var req model.RegisterPatronRequest
		if resp, code, ok := d.decode(arguments, &req); !ok {
			return resp, code
		}
		result, err := d.catalog.RegisterPatron(ctx, req.Name)
		if err != nil {
			body, code := ErrorBodyFor(err)
			return Response{Error: &body}, code
		}
		return Response{Result: result}, http.StatusOK

	case ActionUpdatePatronStatus:
		var req model.UpdatePatronStatusRequest
		if resp, code, ok := d.decode(arguments, &req); !ok {
			return resp, code
		}
		result, err := d.catalog.UpdatePatronStatus(ctx, req.PatronID, model.PatronStatus(req.Status))
		if err != nil {
			body, code := ErrorBodyFor(err)
			return Response{Error: &body}, code
		}
		return Response{Result: result}, http.StatusOK

	default:
		body, code := ErrorBodyFor(errs.ErrNotFound)
		body.Message = "unknown action: " + action
		return Response{Error: &body}, code
	}
}

func (d *Dispatcher) decode(arguments json.RawMessage, req interface{}) (Response, int, bool) {
	if len(arguments) == 0 {
		arguments = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(arguments, req); err != nil {
		body, code := ErrorBodyFor(errs.NewValidationError("arguments", "malformed JSON"))
		return Response{Error: &body}, code, false
	}
	if err := d.validate.Struct(req); err != nil {
		body, code := ErrorBodyFor(asValidationError(err))
		return Response{Error: &body}, code, false
	}
	return Response{}, 0, true
}

func asValidationError(err error) error {
	var vErrs validator.ValidationErrors
	if errors.As(err, &vErrs) && len(vErrs) > 0 {
		return errs.NewValidationError(vErrs[0].Field(), "failed on '"+vErrs[0].Tag()+"'")
	}
	return errs.NewValidationError("arguments", err.Error())
}

// ErrorBodyFor translates internal error kinds into the stable
// external code plus the HTTP status they map to. Infrastructure
// failures stay generic so nothing internal leaks.
func ErrorBodyFor(err error) (errs.ErrorBody, int) {
	var vErr *errs.ValidationError
	if errors.As(err, &vErr) {
		return errs.ErrorBody{Code: errs.CodeValidation, Message: vErr.Error()}, http.StatusBadRequest
	}

	switch {
	case errors.Is(err, errs.ErrNotFound):
		return errs.ErrorBody{Code: errs.CodeNotFound, Message: errs.ErrNotFound.Error()}, http.StatusNotFound
	case errors.Is(err, errs.ErrPatronIneligible):
		return errs.ErrorBody{Code: errs.CodePatronIneligible, Message: errs.ErrPatronIneligible.Error()}, http.StatusUnprocessableEntity
	case errors.Is(err, errs.ErrItemUnavailable):
		return errs.ErrorBody{Code: errs.CodeItemUnavailable, Message: errs.ErrItemUnavailable.Error()}, http.StatusConflict
	case errors.Is(err, errs.ErrAlreadyReturned):
		return errs.ErrorBody{Code: errs.CodeAlreadyReturned, Message: errs.ErrAlreadyReturned.Error()}, http.StatusConflict
	case errors.Is(err, errs.ErrAlreadyAvailable):
		return errs.ErrorBody{Code: errs.CodeAlreadyAvailable, Message: errs.ErrAlreadyAvailable.Error()}, http.StatusConflict
	case errors.Is(err, errs.ErrForbidden):
		return errs.ErrorBody{Code: errs.CodeForbidden, Message: errs.ErrForbidden.Error()}, http.StatusForbidden
	}

	var infra *errs.InfraError
	if errors.As(err, &infra) {
		return errs.ErrorBody{Code: errs.CodeInternal, Message: "storage unavailable"}, http.StatusServiceUnavailable
	}
	return errs.ErrorBody{Code: errs.CodeInternal, Message: "internal error"}, http.StatusInternalServerError
}
