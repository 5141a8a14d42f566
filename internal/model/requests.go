package model

type CheckoutRequest struct {
	PatronID   int64  `json:"patron_id" validate:"required,gt=0"`
	CatalogKey string `json:"catalog_key" validate:"required,len=13,numeric"`
}

type ReturnRequest struct {
	LoanID         string `json:"loan_id" validate:"required,uuid"`
	ConditionNotes string `json:"condition_notes" validate:"omitempty,max=1000"`
}

type ReserveRequest struct {
	PatronID   int64  `json:"patron_id" validate:"required,gt=0"`
	CatalogKey string `json:"catalog_key" validate:"required,len=13,numeric"`
}

type CancelReservationRequest struct {
	ReservationID string `json:"reservation_id" validate:"required,uuid"`
	PatronID      int64  `json:"patron_id" validate:"required,gt=0"`
}

type RegisterAuthorRequest struct {
	Name string `json:"name" validate:"required,max=255"`
}

type AddItemRequest struct {
	CatalogKey string `json:"catalog_key" validate:"required,len=13,numeric"`
	Name       string `json:"name" validate:"required,max=255"`
	AuthorID   int64  `json:"author_id" validate:"required,gt=0"`
	Genre      string `json:"genre" validate:"required,max=100"`
	TotalCount int    `json:"total_count" validate:"required,gt=0"`
}

type UpdateItemRequest struct {
	CatalogKey string `json:"catalog_key" validate:"required,len=13,numeric"`
	Name       string `json:"name" validate:"omitempty,max=255"`
	Genre      string `json:"genre" validate:"omitempty,max=100"`
}

type RegisterPatronRequest struct {
	Name string `json:"name" validate:"required,max=255"`
}

type UpdatePatronStatusRequest struct {
	PatronID int64  `json:"patron_id" validate:"required,gt=0"`
	Status   string `json:"status" validate:"required,oneof=active suspended expired"`
}

// CheckoutResult carries the loan on success; when the item had zero
// availability the queued reservation is reported instead.
type CheckoutResult struct {
	Loan        *Loan        `json:"loan,omitempty"`
	Reservation *Reservation `json:"reservation,omitempty"`
}

// CancelResult reports the reservation removed by cancel_reservation.
type CancelResult struct {
	Cancelled Reservation `json:"cancelled"`
}

// ReturnResult describes a completed return, including a loan promoted
// from the head of the reservation queue, if any.
type ReturnResult struct {
	Loan         Loan    `json:"loan"`
	Fine         float64 `json:"fine"`
	PromotedLoan *Loan   `json:"promoted_loan,omitempty"`
}
