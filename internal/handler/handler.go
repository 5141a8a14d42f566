package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	md "github.com/willtech3/circulation-service/pkg/middleware"

	"github.com/willtech3/circulation-service/internal/dispatcher"
	"github.com/willtech3/circulation-service/internal/errs"
	"github.com/willtech3/circulation-service/internal/model"
	"github.com/willtech3/circulation-service/pkg/kafka"
	"github.com/willtech3/circulation-service/pkg/validate"
)

type Handler struct {
	dispatcher ActionDispatcher
	resolver   ResourceResolver
	enqueuer   Enqueuer
	log        *zap.Logger
}

func New(d ActionDispatcher, r ResourceResolver, enq Enqueuer, log *zap.Logger) *Handler {
	return &Handler{
		dispatcher: d,
		resolver:   r,
		enqueuer:   enq,
		log:        log,
	}
}

func (h *Handler) NewRouter() *echo.Echo {
	e := echo.New()
	const (
		baseRPS = 10
		apiRPS  = 100
	)
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10, // 4 KB
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodOptions, http.MethodHead, http.MethodPost},
		AllowCredentials: true,
	}))

	base := e.Group("", md.NewRateLimiter(baseRPS))
	base.GET("/manage/health", h.Health)

	e.Validator = validate.NewCustomValidator()
	api := e.Group("/api/v1",
		middleware.RequestLoggerWithConfig(md.RequestLoggerConfig()),
		middleware.RequestID(),
		md.NewRateLimiter(apiRPS),
	)

	api.GET("/query", h.Query)
	api.POST("/actions", h.Action)

	return e
}

func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

type queryResponse struct {
	Data interface{} `json:"data"`
}

// Query resolves an addressable URI and runs its handler.
func (h *Handler) Query(c echo.Context) error {
	uri := c.QueryParam("uri")
	if uri == "" {
		body, code := dispatcher.ErrorBodyFor(errs.NewValidationError("uri", "is required"))
		return c.JSON(code, errs.ErrorResponse{Error: body})
	}

	handlerFn, req, err := h.resolver.Resolve(uri)
	if err != nil {
		body, code := dispatcher.ErrorBodyFor(err)
		return c.JSON(code, errs.ErrorResponse{Error: body})
	}

	data, err := handlerFn(c.Request().Context(), req)
	if err != nil {
		body, code := dispatcher.ErrorBodyFor(err)
		return c.JSON(code, errs.ErrorResponse{Error: body})
	}
	return c.JSON(http.StatusOK, queryResponse{Data: data})
}

type actionRequest struct {
	ActionName string          `json:"action_name" validate:"required"`
	Arguments  json.RawMessage `json:"arguments"`
}

// Action validates and dispatches a state-mutating action, then logs
// the audit event for successful mutations.
func (h *Handler) Action(c echo.Context) error {
	var req actionRequest
	if err := c.Bind(&req); err != nil {
		body, code := dispatcher.ErrorBodyFor(errs.NewValidationError("body", "malformed JSON"))
		return c.JSON(code, errs.ErrorResponse{Error: body})
	}
	if err := c.Validate(req); err != nil {
		body, code := dispatcher.ErrorBodyFor(errs.NewValidationError("action_name", "is required"))
		return c.JSON(code, errs.ErrorResponse{Error: body})
	}

	resp, code := h.dispatcher.Dispatch(c.Request().Context(), req.ActionName, req.Arguments)
	if resp.Error == nil {
		h.audit(resp.Result)
	}
	return c.JSON(code, resp)
}

// audit publishes the circulation event. The mutation already
// committed, so a broker outage only costs the audit record.
func (h *Handler) audit(result interface{}) {
	var event kafka.EventCirculation
	switch v := result.(type) {
	case model.CheckoutResult:
		if v.Loan == nil {
			return
		}
		event = kafka.EventCirculation{
			EventType:  kafka.EventCheckout,
			PatronID:   v.Loan.PatronID,
			CatalogKey: v.Loan.CatalogKey,
			RecordUID:  v.Loan.LoanUID,
			Timestamp:  v.Loan.CheckoutAt,
		}
	case model.ReturnResult:
		event = kafka.EventCirculation{
			EventType:  kafka.EventReturn,
			PatronID:   v.Loan.PatronID,
			CatalogKey: v.Loan.CatalogKey,
			RecordUID:  v.Loan.LoanUID,
			Timestamp:  *v.Loan.ReturnedAt,
		}
	case model.Reservation:
		event = kafka.EventCirculation{
			EventType:  kafka.EventReserve,
			PatronID:   v.PatronID,
			CatalogKey: v.CatalogKey,
			RecordUID:  v.ReservationUID,
			Timestamp:  v.CreatedAt,
		}
	case model.CancelResult:
		event = kafka.EventCirculation{
			EventType:  kafka.EventCancel,
			PatronID:   v.Cancelled.PatronID,
			CatalogKey: v.Cancelled.CatalogKey,
			RecordUID:  v.Cancelled.ReservationUID,
			// CreatedAt is when the entry was queued, not when it
			// was cancelled
			Timestamp: time.Now(),
		}
	default:
		return
	}

	if err := h.enqueuer.Enqueue(kafka.CirculationTopic, event); err != nil {
		h.log.Warn("audit event dropped", zap.Error(err), zap.String("event", event.EventType))
	}
}
