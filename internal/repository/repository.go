package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/willtech3/circulation-service/internal/errs"
	"github.com/willtech3/circulation-service/internal/model"
	"github.com/willtech3/circulation-service/pkg/kafka"
)

// Repository is the only component that opens, commits or rolls back a
// unit of work. All reads here run outside any transaction; mutating
// sequences go through WithinTx.
type Repository interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error

	GetBook(ctx context.Context, catalogKey string) (model.Book, error)
	GetAuthor(ctx context.Context, id int64) (model.Author, error)
	GetPatron(ctx context.Context, id int64) (model.Patron, error)
	ListBooks(ctx context.Context, filter model.BookFilter, page, size int, sort string) (model.ListBooks, error)
	ListLoansByPatron(ctx context.Context, patronID int64, page, size int) (model.ListLoans, error)
	ListReservationsByBook(ctx context.Context, bookID int64) ([]model.Reservation, error)

	CreateAuthor(ctx context.Context, name string) (model.Author, error)
	CreateBook(ctx context.Context, book model.Book) (model.Book, error)
	UpdateBook(ctx context.Context, catalogKey, name, genre string) (model.Book, error)
	CreatePatron(ctx context.Context, name string) (model.Patron, error)
	UpdatePatronStatus(ctx context.Context, id int64, status model.PatronStatus) (model.Patron, error)

	ActiveLoanCount(ctx context.Context) (int, error)
	OverdueLoanCount(ctx context.Context, now time.Time) (int, error)
	OpenReservationCount(ctx context.Context) (int, error)
	BookCounts(ctx context.Context) (total int, available int, err error)
	PopularBooks(ctx context.Context, since time.Time, limit int) ([]model.PopularBook, error)

	RecordEvent(ctx context.Context, event kafka.EventCirculation) error
}

type repository struct {
	db  *sqlx.DB
	log *zap.Logger
}

func NewRepository(db *sqlx.DB, log *zap.Logger) (*repository, error) {
	return &repository{
		db:  db,
		log: log.Named("repo"),
	}, nil
}

const (
	authorsTableName      = `authors`
	booksTableName        = `books`
	patronsTableName      = `patrons`
	loansTableName        = `loans`
	reservationsTableName = `reservations`
	eventsTableName       = `circulation_events`
)

var qb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var bookColumns = []string{"id", "catalog_key", "name", "author_id", "genre", "total_count", "available_count"}

func (r *repository) GetBook(ctx context.Context, catalogKey string) (model.Book, error) {
	query, args, err := qb.Select(bookColumns...).
		From(booksTableName).
		Where(sq.Eq{"catalog_key": catalogKey}).
		Limit(1).
		ToSql()
	if err != nil {
		return model.Book{}, err
	}

	var book model.Book
	if err := r.db.GetContext(ctx, &book, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Book{}, errs.ErrNotFound
		}
		return model.Book{}, errors.Wrap(err, "GetBook")
	}
	return book, nil
}

func (r *repository) GetAuthor(ctx context.Context, id int64) (model.Author, error) {
	query, args, err := qb.Select("id", "name").
		From(authorsTableName).
		Where(sq.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return model.Author{}, err
	}

	var author model.Author
	if err := r.db.GetContext(ctx, &author, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Author{}, errs.ErrNotFound
		}
		return model.Author{}, errors.Wrap(err, "GetAuthor")
	}
	return author, nil
}

func (r *repository) GetPatron(ctx context.Context, id int64) (model.Patron, error) {
	query, args, err := qb.Select("id", "name", "status", "fine_balance", "checkout_count").
		From(patronsTableName).
		Where(sq.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return model.Patron{}, err
	}

	var patron model.Patron
	if err := r.db.GetContext(ctx, &patron, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Patron{}, errs.ErrNotFound
		}
		return model.Patron{}, errors.Wrap(err, "GetPatron")
	}
	return patron, nil
}

var bookSortColumns = map[string]string{
	"":            "catalog_key",
	"catalog_key": "catalog_key",
	"name":        "name",
	"genre":       "genre",
}

func (r *repository) ListBooks(ctx context.Context, filter model.BookFilter, page, size int, sort string) (model.ListBooks, error) {
	orderBy, ok := bookSortColumns[sort]
	if !ok {
		return model.ListBooks{}, errs.NewValidationError("sort", "unknown sort column")
	}

	where := sq.And{}
	if filter.AuthorID != nil {
		where = append(where, sq.Eq{"author_id": *filter.AuthorID})
	}
	if filter.Genre != nil {
		where = append(where, sq.Eq{"genre": *filter.Genre})
	}

	countQ := qb.Select("count(*)").From(booksTableName)
	listQ := qb.Select(bookColumns...).From(booksTableName)
	if len(where) > 0 {
		countQ = countQ.Where(where)
		listQ = listQ.Where(where)
	}

	query, args, err := countQ.ToSql()
	if err != nil {
		return model.ListBooks{}, err
	}
	var total int
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		return model.ListBooks{}, errors.Wrap(err, "ListBooks count")
	}

	query, args, err = listQ.
		OrderBy(orderBy).
		Limit(uint64(size)).
		Offset(uint64((page - 1) * size)).
		ToSql()
	if err != nil {
		return model.ListBooks{}, err
	}
	r.log.Debug("ListBooks", zap.String("query", query), zap.Any("args", args))

	books := make([]model.Book, 0)
	if err := r.db.SelectContext(ctx, &books, query, args...); err != nil {
		return model.ListBooks{}, errors.Wrap(err, "ListBooks")
	}

	return model.ListBooks{
		Paging: model.NewPaging(page, size, total),
		Items:  books,
	}, nil
}

func (r *repository) ListLoansByPatron(ctx context.Context, patronID int64, page, size int) (model.ListLoans, error) {
	query, args, err := qb.Select("count(*)").
		From(loansTableName).
		Where(sq.Eq{"patron_id": patronID}).
		ToSql()
	if err != nil {
		return model.ListLoans{}, err
	}
	var total int
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		return model.ListLoans{}, errors.Wrap(err, "ListLoansByPatron count")
	}

	query, args, err = qb.Select("l.id", "loan_uid", "patron_id", "book_id", "b.catalog_key",
		"checkout_at", "due_at", "returned_at", "fine", "condition_notes").
		From(loansTableName+" l").
		Join(booksTableName+" b on b.id = l.book_id").
		Where(sq.Eq{"patron_id": patronID}).
		OrderBy("checkout_at desc").
		Limit(uint64(size)).
		Offset(uint64((page - 1) * size)).
		ToSql()
	if err != nil {
		return model.ListLoans{}, err
	}

	loans := make([]model.Loan, 0)
	if err := r.db.SelectContext(ctx, &loans, query, args...); err != nil {
		return model.ListLoans{}, errors.Wrap(err, "ListLoansByPatron")
	}

	return model.ListLoans{
		Paging: model.NewPaging(page, size, total),
		Items:  loans,
	}, nil
}

func (r *repository) ListReservationsByBook(ctx context.Context, bookID int64) ([]model.Reservation, error) {
	query, args, err := qb.Select("r.id", "reservation_uid", "patron_id", "book_id", "b.catalog_key",
		"queue_position", "seq", "created_at", "expires_at").
		From(reservationsTableName+" r").
		Join(booksTableName+" b on b.id = r.book_id").
		Where(sq.Eq{"book_id": bookID}).
		OrderBy("created_at", "seq").
		ToSql()
	if err != nil {
		return nil, err
	}

	items := make([]model.Reservation, 0)
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, errors.Wrap(err, "ListReservationsByBook")
	}
	return items, nil
}

func (r *repository) CreateAuthor(ctx context.Context, name string) (model.Author, error) {
	query, args, err := qb.Insert(authorsTableName).
		Columns("name").
		Values(name).
		Suffix("returning id").
		ToSql()
	if err != nil {
		return model.Author{}, err
	}

	author := model.Author{Name: name}
	if err := r.db.GetContext(ctx, &author.ID, query, args...); err != nil {
		return model.Author{}, errors.Wrap(err, "CreateAuthor")
	}
	return author, nil
}

func (r *repository) CreateBook(ctx context.Context, book model.Book) (model.Book, error) {
	// a fresh catalog entry has every copy on the shelf
	book.AvailableCount = book.TotalCount

	query, args, err := qb.Insert(booksTableName).
		Columns("catalog_key", "name", "author_id", "genre", "total_count", "available_count").
		Values(book.CatalogKey, book.Name, book.AuthorID, book.Genre, book.TotalCount, book.AvailableCount).
		Suffix("returning id").
		ToSql()
	if err != nil {
		return model.Book{}, err
	}

	if err := r.db.GetContext(ctx, &book.ID, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return model.Book{}, errs.NewValidationError("catalog_key", "already registered")
		}
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return model.Book{}, errs.ErrNotFound
		}
		return model.Book{}, errors.Wrap(err, "CreateBook")
	}
	return book, nil
}

func (r *repository) UpdateBook(ctx context.Context, catalogKey, name, genre string) (model.Book, error) {
	upd := qb.Update(booksTableName).
		Where(sq.Eq{"catalog_key": catalogKey}).
		Suffix("returning " + strings.Join(bookColumns, ", "))
	if name != "" {
		upd = upd.Set("name", name)
	}
	if genre != "" {
		upd = upd.Set("genre", genre)
	}
	if name == "" && genre == "" {
		return r.GetBook(ctx, catalogKey)
	}

	query, args, err := upd.ToSql()
	if err != nil {
		return model.Book{}, err
	}

	var book model.Book
	if err := r.db.GetContext(ctx, &book, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Book{}, errs.ErrNotFound
		}
		return model.Book{}, errors.Wrap(err, "UpdateBook")
	}
	return book, nil
}

func (r *repository) CreatePatron(ctx context.Context, name string) (model.Patron, error) {
	query, args, err := qb.Insert(patronsTableName).
		Columns("name").
		Values(name).
		Suffix("returning id, status").
		ToSql()
	if err != nil {
		return model.Patron{}, err
	}

	patron := model.Patron{Name: name}
	row := r.db.QueryRowxContext(ctx, query, args...)
	if err := row.Scan(&patron.ID, &patron.Status); err != nil {
		return model.Patron{}, errors.Wrap(err, "CreatePatron")
	}
	return patron, nil
}

func (r *repository) UpdatePatronStatus(ctx context.Context, id int64, status model.PatronStatus) (model.Patron, error) {
	const q = `
	update patrons set status = $2
	where id = $1
	returning id, name, status, fine_balance, checkout_count`

	var patron model.Patron
	if err := r.db.GetContext(ctx, &patron, q, id, status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Patron{}, errs.ErrNotFound
		}
		return model.Patron{}, errors.Wrap(err, "UpdatePatronStatus")
	}
	return patron, nil
}

func (r *repository) ActiveLoanCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`select count(*) from loans where returned_at is null`)
	return count, errors.Wrap(err, "ActiveLoanCount")
}

func (r *repository) OverdueLoanCount(ctx context.Context, now time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`select count(*) from loans where returned_at is null and due_at < $1`, now)
	return count, errors.Wrap(err, "OverdueLoanCount")
}

func (r *repository) OpenReservationCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `select count(*) from reservations`)
	return count, errors.Wrap(err, "OpenReservationCount")
}

func (r *repository) BookCounts(ctx context.Context) (int, int, error) {
	var counts struct {
		Total     int `db:"total"`
		Available int `db:"available"`
	}
	err := r.db.GetContext(ctx, &counts,
		`select coalesce(sum(total_count), 0) as total, coalesce(sum(available_count), 0) as available from books`)
	if err != nil {
		return 0, 0, errors.Wrap(err, "BookCounts")
	}
	return counts.Total, counts.Available, nil
}

func (r *repository) PopularBooks(ctx context.Context, since time.Time, limit int) ([]model.PopularBook, error) {
	const q = `
	select b.catalog_key, b.name, count(*) as checkout_count
	from loans l
	join books b on b.id = l.book_id
	where l.checkout_at >= $1
	group by b.catalog_key, b.name
	order by checkout_count desc, b.catalog_key
	limit $2`

	items := make([]model.PopularBook, 0)
	if err := r.db.SelectContext(ctx, &items, q, since, limit); err != nil {
		return nil, errors.Wrap(err, "PopularBooks")
	}
	return items, nil
}

func (r *repository) RecordEvent(ctx context.Context, event kafka.EventCirculation) error {
	query, args, err := qb.Insert(eventsTableName).
		Columns("ts", "event_type", "patron_id", "catalog_key", "record_uid").
		Values(event.Timestamp, event.EventType, event.PatronID, event.CatalogKey, event.RecordUID).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, query, args...)
	return errors.Wrap(err, "RecordEvent")
}
