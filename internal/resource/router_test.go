package resource_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/willtech3/circulation-service/internal/errs"
	"github.com/willtech3/circulation-service/internal/resource"
)

func noop(name string) resource.Handler {
	return func(_ context.Context, _ resource.Request) (interface{}, error) {
		return name, nil
	}
}

func TestRouter_Resolve(t *testing.T) {
	t.Parallel()

	r := resource.NewRouter(zap.NewExample())
	require.NoError(t, r.Register("items://list", noop("list")))
	require.NoError(t, r.Register("items://{catalog_key}", noop("get")))
	require.NoError(t, r.Register("items://by-author/{author_id}", noop("by-author")))
	require.NoError(t, r.Register("stats://circulation", noop("stats")))

	t.Run("templated binds parameter", func(t *testing.T) {
		h, req, err := r.Resolve("items://by-author/42")
		require.NoError(t, err)
		require.Equal(t, map[string]string{"author_id": "42"}, req.Params)
		got, _ := h(context.Background(), req)
		require.Equal(t, "by-author", got)
	})

	t.Run("static resolves with no parameters", func(t *testing.T) {
		h, req, err := r.Resolve("stats://circulation")
		require.NoError(t, err)
		require.Empty(t, req.Params)
		got, _ := h(context.Background(), req)
		require.Equal(t, "stats", got)
	})

	t.Run("literal beats parameter", func(t *testing.T) {
		h, _, err := r.Resolve("items://list")
		require.NoError(t, err)
		got, _ := h(context.Background(), resource.Request{})
		require.Equal(t, "list", got)
	})

	t.Run("parameter still matches non-literal", func(t *testing.T) {
		_, req, err := r.Resolve("items://9780000000001")
		require.NoError(t, err)
		require.Equal(t, "9780000000001", req.Params["catalog_key"])
	})

	t.Run("unregistered path is NotFound", func(t *testing.T) {
		_, _, err := r.Resolve("items://by-publisher/9")
		require.ErrorIs(t, err, errs.ErrNotFound)

		_, _, err = r.Resolve("loans://list")
		require.ErrorIs(t, err, errs.ErrNotFound)
	})

	t.Run("arity mismatch is NotFound", func(t *testing.T) {
		_, _, err := r.Resolve("items://by-author/42/extra")
		require.ErrorIs(t, err, errs.ErrNotFound)
	})

	t.Run("query string is parsed and stripped", func(t *testing.T) {
		_, req, err := r.Resolve("items://list?page=2&page_size=5")
		require.NoError(t, err)
		require.Equal(t, "2", req.Query.Get("page"))
		require.Equal(t, "5", req.Query.Get("page_size"))
	})
}

func TestRouter_Register(t *testing.T) {
	t.Parallel()

	t.Run("shape-identical patterns rejected", func(t *testing.T) {
		r := resource.NewRouter(zap.NewExample())
		require.NoError(t, r.Register("items://{catalog_key}", noop("a")))
		require.Error(t, r.Register("items://{isbn}", noop("b")))
	})

	t.Run("duplicate literal rejected", func(t *testing.T) {
		r := resource.NewRouter(zap.NewExample())
		require.NoError(t, r.Register("stats://circulation", noop("a")))
		require.Error(t, r.Register("stats://circulation", noop("b")))
	})

	t.Run("duplicate parameter name rejected", func(t *testing.T) {
		r := resource.NewRouter(zap.NewExample())
		require.Error(t, r.Register("stats://{x}/{x}", noop("a")))
	})

	t.Run("malformed segment rejected", func(t *testing.T) {
		r := resource.NewRouter(zap.NewExample())
		require.Error(t, r.Register("items://{broken", noop("a")))
		require.Error(t, r.Register("items://br}oken", noop("a")))
		require.Error(t, r.Register("no-scheme/path", noop("a")))
	})

	t.Run("nil handler rejected", func(t *testing.T) {
		r := resource.NewRouter(zap.NewExample())
		require.Error(t, r.Register("items://list", nil))
	})
}
