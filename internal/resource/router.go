// Package resource maps addressable URIs like
// items://by-author/{author_id} onto registered query handlers. The
// registration table is explicit and validated eagerly: malformed,
// duplicate or shape-identical patterns fail at startup, not at
// request time.
package resource

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/willtech3/circulation-service/internal/errs"
)

// Request is what a resolved handler receives: path parameters bound
// from the pattern (always strings) and the query string of the
// requested URI.
type Request struct {
	Params map[string]string
	Query  url.Values
}

type Handler func(ctx context.Context, req Request) (interface{}, error)

type segment struct {
	literal string
	param   string // non-empty for {name} segments
}

type route struct {
	pattern  string
	scheme   string
	segments []segment
	handler  Handler
}

type Router struct {
	routes []*route
	log    *zap.Logger
}

func NewRouter(log *zap.Logger) *Router {
	return &Router{log: log.Named("resource")}
}

// Register adds a pattern. It fails fast on malformed templates,
// duplicated parameter names, and patterns whose shape collides with
// an already registered one (same scheme, same arity, literals equal
// position by position).
func (r *Router) Register(pattern string, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("register %q: nil handler", pattern)
	}
	rt, err := parsePattern(pattern)
	if err != nil {
		return err
	}
	rt.handler = handler

	for _, existing := range r.routes {
		if collides(existing, rt) {
			return fmt.Errorf("register %q: ambiguous with %q", pattern, existing.pattern)
		}
	}

	r.routes = append(r.routes, rt)
	r.log.Debug("registered resource", zap.String("pattern", pattern))
	return nil
}

// MustRegister is Register for startup wiring, where a bad pattern is
// a programming error.
func (r *Router) MustRegister(pattern string, handler Handler) {
	if err := r.Register(pattern, handler); err != nil {
		panic(err)
	}
}

// Resolve matches the URI against the registration table. Literal
// segments beat parameter segments position by position, so
// items://list wins over items://{catalog_key} for "items://list".
// Unmatched URIs return errs.ErrNotFound.
func (r *Router) Resolve(uri string) (Handler, Request, error) {
	path := uri
	var query url.Values
	if idx := strings.IndexByte(uri, '?'); idx >= 0 {
		path = uri[:idx]
		q, err := url.ParseQuery(uri[idx+1:])
		if err != nil {
			return nil, Request{}, errs.NewValidationError("uri", "malformed query string")
		}
		query = q
	}

	scheme, segs, err := splitURI(path)
	if err != nil {
		return nil, Request{}, err
	}

	var (
		best      *route
		bestScore int = -1
	)
	for _, rt := range r.routes {
		if rt.scheme != scheme || len(rt.segments) != len(segs) {
			continue
		}
		score, ok := match(rt, segs)
		if !ok {
			continue
		}
		if score > bestScore {
			best, bestScore = rt, score
		}
	}
	if best == nil {
		return nil, Request{}, errs.ErrNotFound
	}

	params := make(map[string]string)
	for i, s := range best.segments {
		if s.param != "" {
			params[s.param] = segs[i]
		}
	}
	return best.handler, Request{Params: params, Query: query}, nil
}

// match reports whether the concrete segments fit the route. The score
// weights literal matches by position so that earlier literal segments
// dominate, mirroring trie-style literal precedence.
func match(rt *route, segs []string) (int, bool) {
	score := 0
	for i, s := range rt.segments {
		score <<= 1
		if s.param != "" {
			continue
		}
		if s.literal != segs[i] {
			return 0, false
		}
		score |= 1
	}
	return score, true
}

// collides reports shape-identical patterns: every position is either
// the same literal or both parameters. Literal-vs-parameter positions
// disambiguate, so such pairs are allowed.
func collides(a, b *route) bool {
	if a.scheme != b.scheme || len(a.segments) != len(b.segments) {
		return false
	}
	for i := range a.segments {
		sa, sb := a.segments[i], b.segments[i]
		if (sa.param != "") != (sb.param != "") {
			return false
		}
		if sa.param == "" && sa.literal != sb.literal {
			return false
		}
	}
	return true
}

func parsePattern(pattern string) (*route, error) {
	scheme, raw, err := splitURI(pattern)
	if err != nil {
		return nil, fmt.Errorf("register %q: %w", pattern, err)
	}

	segments := make([]segment, 0, len(raw))
	seen := make(map[string]struct{})
	for _, s := range raw {
		if strings.HasPrefix(s, "{") || strings.HasSuffix(s, "}") {
			name := strings.TrimSuffix(strings.TrimPrefix(s, "{"), "}")
			if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") || name == "" || strings.ContainsAny(name, "{}") {
				return nil, fmt.Errorf("register %q: malformed parameter segment %q", pattern, s)
			}
			if _, dup := seen[name]; dup {
				return nil, fmt.Errorf("register %q: duplicate parameter %q", pattern, name)
			}
			seen[name] = struct{}{}
			segments = append(segments, segment{param: name})
			continue
		}
		if strings.ContainsAny(s, "{}") {
			return nil, fmt.Errorf("register %q: malformed segment %q", pattern, s)
		}
		segments = append(segments, segment{literal: s})
	}

	return &route{pattern: pattern, scheme: scheme, segments: segments}, nil
}

func splitURI(uri string) (string, []string, error) {
	scheme, rest, found := strings.Cut(uri, "://")
	if !found || scheme == "" || rest == "" {
		return "", nil, errs.NewValidationError("uri", "expected scheme://path")
	}
	segs := strings.Split(rest, "/")
	for _, s := range segs {
		if s == "" {
			return "", nil, errs.NewValidationError("uri", "empty path segment")
		}
	}
	return scheme, segs, nil
}
