package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	chathandler "github.com/brightdoor/brokerchat/internal/handler/chat"
	panelhandler "github.com/brightdoor/brokerchat/internal/handler/panel"
	middlewarePkg "github.com/brightdoor/brokerchat/internal/middleware"
	"github.com/brightdoor/brokerchat/internal/service/dispatch"
	"github.com/brightdoor/brokerchat/internal/service/resolve"
	"github.com/brightdoor/brokerchat/internal/service/session"
	"github.com/brightdoor/brokerchat/internal/service/workspace"
)

// NewRouter wires HTTP routes to core services. dispatcher may be nil when
// the AI model is not configured.
func NewRouter(store session.Store, dispatcher *dispatch.Dispatcher, hub *workspace.Hub, resolver *resolve.Resolver) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	chatHandler := chathandler.New(store, dispatcher)
	panelHandler := panelhandler.New(hub, resolver, store)
	wsHandler := panelhandler.NewWebSocketHandler(hub, store)

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
		panelHandler.RegisterRoutes(api)
		wsHandler.RegisterRoutes(api)
	})

	return r
}
