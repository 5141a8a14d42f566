package resource

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/willtech3/circulation-service/internal/errs"
	"github.com/willtech3/circulation-service/internal/model"
	"github.com/willtech3/circulation-service/internal/repository"
)

const (
	defaultPageSize = 20

	maxPopularDays  = 365
	maxPopularLimit = 50
)

// Registry owns the query handlers and their wiring onto a Router.
type Registry struct {
	repo        repository.Repository
	maxPageSize int
	log         *zap.Logger
	now         func() time.Time
}

func NewRegistry(repo repository.Repository, maxPageSize int, log *zap.Logger) *Registry {
	return &Registry{
		repo:        repo,
		maxPageSize: maxPageSize,
		log:         log,
		now:         time.Now,
	}
}

// NewRouter builds the full registration table. Patterns are validated
// eagerly; a bad table is a startup failure.
func (g *Registry) NewRouter() (*Router, error) {
	r := NewRouter(g.log)

	for pattern, handler := range map[string]Handler{
		"items://list":                   g.ListItems,
		"items://{catalog_key}":          g.GetItem,
		"items://by-author/{author_id}":  g.ItemsByAuthor,
		"items://by-genre/{genre}":       g.ItemsByGenre,
		"patrons://{patron_id}/history":  g.PatronHistory,
		"stats://circulation":            g.CirculationStats,
		"stats://popular/{days}/{limit}": g.PopularItems,
	} {
		if err := r.Register(pattern, handler); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (g *Registry) ListItems(ctx context.Context, req Request) (interface{}, error) {
	page, size, err := g.paging(req.Query)
	if err != nil {
		return nil, err
	}
	return g.repo.ListBooks(ctx, model.BookFilter{}, page, size, req.Query.Get("sort"))
}

func (g *Registry) GetItem(ctx context.Context, req Request) (interface{}, error) {
	key := req.Params["catalog_key"]
	if len(key) != 13 {
		return nil, errs.NewValidationError("catalog_key", "must be a 13-digit key")
	}
	if _, err := strconv.ParseUint(key, 10, 64); err != nil {
		return nil, errs.NewValidationError("catalog_key", "must be numeric")
	}
	return g.repo.GetBook(ctx, key)
}

func (g *Registry) ItemsByAuthor(ctx context.Context, req Request) (interface{}, error) {
	authorID, err := strconv.ParseInt(req.Params["author_id"], 10, 64)
	if err != nil {
		return nil, errs.NewValidationError("author_id", "must be an integer")
	}
	page, size, err := g.paging(req.Query)
	if err != nil {
		return nil, err
	}
	if _, err := g.repo.GetAuthor(ctx, authorID); err != nil {
		return nil, err
	}
	return g.repo.ListBooks(ctx, model.BookFilter{AuthorID: &authorID}, page, size, req.Query.Get("sort"))
}

func (g *Registry) ItemsByGenre(ctx context.Context, req Request) (interface{}, error) {
	genre := req.Params["genre"]
	page, size, err := g.paging(req.Query)
	if err != nil {
		return nil, err
	}
	return g.repo.ListBooks(ctx, model.BookFilter{Genre: &genre}, page, size, req.Query.Get("sort"))
}

func (g *Registry) PatronHistory(ctx context.Context, req Request) (interface{}, error) {
	patronID, err := strconv.ParseInt(req.Params["patron_id"], 10, 64)
	if err != nil {
		return nil, errs.NewValidationError("patron_id", "must be an integer")
	}
	page, size, err := g.paging(req.Query)
	if err != nil {
		return nil, err
	}
	if _, err := g.repo.GetPatron(ctx, patronID); err != nil {
		return nil, err
	}
	return g.repo.ListLoansByPatron(ctx, patronID, page, size)
}

func (g *Registry) CirculationStats(ctx context.Context, _ Request) (interface{}, error) {
	var stats model.CirculationStats
	now := g.now()

	gg, ctx := errgroup.WithContext(ctx)
	gg.Go(func() error {
		n, err := g.repo.ActiveLoanCount(ctx)
		stats.ActiveLoans = n
		return err
	})
	gg.Go(func() error {
		n, err := g.repo.OverdueLoanCount(ctx, now)
		stats.OverdueLoans = n
		return err
	})
	gg.Go(func() error {
		n, err := g.repo.OpenReservationCount(ctx)
		stats.OpenReservations = n
		return err
	})
	gg.Go(func() error {
		total, available, err := g.repo.BookCounts(ctx)
		stats.TotalBooks = total
		stats.TotalAvailable = available
		return err
	})
	if err := gg.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}

func (g *Registry) PopularItems(ctx context.Context, req Request) (interface{}, error) {
	days, err := strconv.Atoi(req.Params["days"])
	if err != nil || days < 1 || days > maxPopularDays {
		return nil, errs.NewValidationError("days", "must be in [1, 365]")
	}
	limit, err := strconv.Atoi(req.Params["limit"])
	if err != nil || limit < 1 || limit > maxPopularLimit {
		return nil, errs.NewValidationError("limit", "must be in [1, 50]")
	}

	since := g.now().AddDate(0, 0, -days)
	return g.repo.PopularBooks(ctx, since, limit)
}

// paging reads page / page_size from the query string, applying
// defaults and the configured bounds.
func (g *Registry) paging(query url.Values) (int, int, error) {
	page := 1
	if raw := query.Get("page"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil || p < 1 {
			return 0, 0, errs.NewValidationError("page", "must be >= 1")
		}
		page = p
	}

	size := defaultPageSize
	if raw := query.Get("page_size"); raw != "" {
		s, err := strconv.Atoi(raw)
		if err != nil || s < 1 || s > g.maxPageSize {
			return 0, 0, errs.NewValidationError("page_size", "out of range")
		}
		size = s
	}
	return page, size, nil
}
