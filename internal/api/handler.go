package api

import (
	"context"

	"github.com/SherClockHolmes/webpush-go"

	"bpark-backend/internal/model"
	"bpark-backend/internal/parking"
	"bpark-backend/internal/protocol"
	"bpark-backend/internal/session"
	"bpark-backend/internal/store"
)

// Engine is the part of the allocation engine the REST handlers use.
type Engine interface {
	Authenticate(ctx context.Context, email, password string) (*model.Subscriber, error)
	CurrentParking(ctx context.Context) (parking.Result, error)
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	ctx        context.Context
	store      store.Store
	engine     Engine
	server     *protocol.Server
	sessions   *session.Registry
	webpush    *webpush.Options
	adminToken string
}

// Options configures a Handler.
type Options struct {
	Store      store.Store
	Engine     Engine
	Server     *protocol.Server
	Sessions   *session.Registry
	WebPush    *webpush.Options
	AdminToken string
}

// NewHandler creates a new API handler. Websocket connections live until
// they close or ctx ends.
func NewHandler(ctx context.Context, opts Options) *Handler {
	return &Handler{
		ctx:        ctx,
		store:      opts.Store,
		engine:     opts.Engine,
		server:     opts.Server,
		sessions:   opts.Sessions,
		webpush:    opts.WebPush,
		adminToken: opts.AdminToken,
	}
}
