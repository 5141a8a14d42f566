// Package catalog handles intake and upkeep of the records the
// circulation engine lends against: authors, catalog entries and
// patron registrations.
package catalog

import (
	"context"

	"go.uber.org/zap"

	"github.com/willtech3/circulation-service/internal/model"
	"github.com/willtech3/circulation-service/internal/repository"
)

type Catalog struct {
	repo repository.Repository
	log  *zap.Logger
}

func New(repo repository.Repository, log *zap.Logger) *Catalog {
	return &Catalog{
		repo: repo,
		log:  log.Named("catalog"),
	}
}

func (c *Catalog) RegisterAuthor(ctx context.Context, name string) (model.Author, error) {
	author, err := c.repo.CreateAuthor(ctx, name)
	if err != nil {
		return model.Author{}, err
	}
	c.log.Debug("author registered", zap.Int64("author_id", author.ID))
	return author, nil
}

// AddItem registers a catalog entry. Every copy starts on the shelf,
// so available_count equals total_count.
func (c *Catalog) AddItem(ctx context.Context, req model.AddItemRequest) (model.Book, error) {
	if _, err := c.repo.GetAuthor(ctx, req.AuthorID); err != nil {
		return model.Book{}, err
	}
	book, err := c.repo.CreateBook(ctx, model.Book{
		CatalogKey: req.CatalogKey,
		Name:       req.Name,
		AuthorID:   req.AuthorID,
		Genre:      req.Genre,
		TotalCount: req.TotalCount,
	})
	if err != nil {
		return model.Book{}, err
	}
	c.log.Debug("item added", zap.String("catalog_key", book.CatalogKey))
	return book, nil
}

// UpdateItem changes descriptive fields only. Copy counts belong to
// the circulation engine.
func (c *Catalog) UpdateItem(ctx context.Context, req model.UpdateItemRequest) (model.Book, error) {
	return c.repo.UpdateBook(ctx, req.CatalogKey, req.Name, req.Genre)
}

func (c *Catalog) RegisterPatron(ctx context.Context, name string) (model.Patron, error) {
	patron, err := c.repo.CreatePatron(ctx, name)
	if err != nil {
		return model.Patron{}, err
	}
	c.log.Debug("patron registered", zap.Int64("patron_id", patron.ID))
	return patron, nil
}

func (c *Catalog) UpdatePatronStatus(ctx context.Context, id int64, status model.PatronStatus) (model.Patron, error) {
	return c.repo.UpdatePatronStatus(ctx, id, status)
}
