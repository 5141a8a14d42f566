package model

import (
	"time"
)

type Author struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

type Book struct {
	ID             int64  `json:"-" db:"id"`
	CatalogKey     string `json:"catalog_key" db:"catalog_key"`
	Name           string `json:"name" db:"name"`
	AuthorID       int64  `json:"author_id" db:"author_id"`
	Genre          string `json:"genre" db:"genre"`
	TotalCount     int    `json:"total_count" db:"total_count"`
	AvailableCount int    `json:"available_count" db:"available_count"`
}

type PatronStatus string

const (
	PatronActive    PatronStatus = "active"
	PatronSuspended PatronStatus = "suspended"
	PatronExpired   PatronStatus = "expired"
)

type Patron struct {
	ID            int64        `json:"id" db:"id"`
	Name          string       `json:"name" db:"name"`
	Status        PatronStatus `json:"status" db:"status"`
	FineBalance   float64      `json:"fine_balance" db:"fine_balance"`
	CheckoutCount int          `json:"checkout_count" db:"checkout_count"`
}

type Loan struct {
	ID             int64      `json:"-" db:"id"`
	LoanUID        string     `json:"loan_id" db:"loan_uid"`
	PatronID       int64      `json:"patron_id" db:"patron_id"`
	BookID         int64      `json:"-" db:"book_id"`
	CatalogKey     string     `json:"catalog_key" db:"catalog_key"`
	CheckoutAt     time.Time  `json:"checkout_at" db:"checkout_at"`
	DueAt          time.Time  `json:"due_at" db:"due_at"`
	ReturnedAt     *time.Time `json:"returned_at,omitempty" db:"returned_at"`
	Fine           float64    `json:"fine" db:"fine"`
	ConditionNotes *string    `json:"condition_notes,omitempty" db:"condition_notes"`
}

func (l Loan) Returned() bool {
	return l.ReturnedAt != nil
}

type Reservation struct {
	ID             int64      `json:"-" db:"id"`
	ReservationUID string     `json:"reservation_id" db:"reservation_uid"`
	PatronID       int64      `json:"patron_id" db:"patron_id"`
	BookID         int64      `json:"-" db:"book_id"`
	CatalogKey     string     `json:"catalog_key" db:"catalog_key"`
	QueuePosition  int        `json:"queue_position" db:"queue_position"`
	Seq            int64      `json:"-" db:"seq"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty" db:"expires_at"`
}

// Paging is the fixed pagination envelope shared by every list endpoint.
type Paging struct {
	Page        int  `json:"page"`
	PageSize    int  `json:"page_size"`
	Total       int  `json:"total"`
	TotalPages  int  `json:"total_pages"`
	HasNext     bool `json:"has_next"`
	HasPrevious bool `json:"has_previous"`
}

// NewPaging fills the derived envelope fields from total and the
// requested page window.
func NewPaging(page, pageSize, total int) Paging {
	totalPages := 0
	if pageSize > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}
	return Paging{
		Page:        page,
		PageSize:    pageSize,
		Total:       total,
		TotalPages:  totalPages,
		HasNext:     page < totalPages,
		HasPrevious: page > 1 && total > 0,
	}
}

type ListBooks struct {
	Paging `json:",inline"`
	Items  []Book `json:"items"`
}

type ListLoans struct {
	Paging `json:",inline"`
	Items  []Loan `json:"items"`
}

// BookFilter narrows book listings; nil fields match everything.
type BookFilter struct {
	AuthorID *int64
	Genre    *string
}

type CirculationStats struct {
	ActiveLoans      int `json:"active_loans" db:"active_loans"`
	OverdueLoans     int `json:"overdue_loans" db:"overdue_loans"`
	OpenReservations int `json:"open_reservations" db:"open_reservations"`
	TotalBooks       int `json:"total_books" db:"total_books"`
	TotalAvailable   int `json:"total_available" db:"total_available"`
}

type PopularBook struct {
	CatalogKey    string `json:"catalog_key" db:"catalog_key"`
	Name          string `json:"name" db:"name"`
	CheckoutCount int    `json:"checkout_count" db:"checkout_count"`
}
