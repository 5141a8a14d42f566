package handler

import (
	"context"
	"encoding/json"

	"github.com/willtech3/circulation-service/internal/dispatcher"
	"github.com/willtech3/circulation-service/internal/resource"
)

//go:generate go run github.com/golang/mock/mockgen -source=service.go -destination=mocks/mock.go

type ActionDispatcher interface {
	Dispatch(ctx context.Context, action string, arguments json.RawMessage) (dispatcher.Response, int)
}

type ResourceResolver interface {
	Resolve(uri string) (resource.Handler, resource.Request, error)
}

var (
	_ ActionDispatcher = (*dispatcher.Dispatcher)(nil)
	_ ResourceResolver = (*resource.Router)(nil)
)
