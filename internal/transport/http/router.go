package http

import (
	"net/http"

	"github.com/alerts-manage-api/internal/application/identity"
	"github.com/alerts-manage-api/internal/application/managetoken"
	"github.com/alerts-manage-api/internal/application/preference"
	"github.com/alerts-manage-api/internal/application/verification"
	"github.com/alerts-manage-api/internal/config"
	"github.com/alerts-manage-api/internal/infrastructure/dynamo"
	"github.com/alerts-manage-api/internal/infrastructure/sns"
	"github.com/alerts-manage-api/internal/infrastructure/telegram"
	"github.com/alerts-manage-api/internal/infrastructure/whop"
	"github.com/alerts-manage-api/internal/transport/http/handler"
	appmiddleware "github.com/alerts-manage-api/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	SubscriberRepo *dynamo.SubscriberRepo
	ChatRepo       *dynamo.ChatSubscriberRepo
	TokenRepo      *dynamo.TokenRepo
	SMSSender      sns.SMSSender
	ChatSender     telegram.ChatSender
	WhopVerifier   *whop.Verifier
}

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "x-whop-user-token"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// 5 requests/second, burst of 10, applied to sensitive public endpoints.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	identitySvc := identity.NewService(deps.SubscriberRepo, deps.ChatRepo)
	verifySvc := verification.NewService(verification.ServiceDeps{
		SubscriberRepo: deps.SubscriberRepo,
		ChatRepo:       deps.ChatRepo,
		SMSSender:      deps.SMSSender,
		ChatSender:     deps.ChatSender,
		CodeLength:     cfg.VerifyCodeLength,
	})
	tokenSvc := managetoken.NewService(managetoken.ServiceDeps{
		TokenRepo: deps.TokenRepo,
		Identity:  identitySvc,
		TTL:       cfg.ManageTokenTTL,
		LinkBase:  cfg.ManageLinkBase,
	})
	prefSvc := preference.NewService(preference.ServiceDeps{
		SubscriberRepo:  deps.SubscriberRepo,
		ChatRepo:        deps.ChatRepo,
		RequireVerified: cfg.RequireVerifiedWrites,
	})

	healthH := handler.NewHealthHandler()
	manageH := handler.NewManageHandler(identitySvc, tokenSvc, prefSvc)
	verifyH := handler.NewVerifyHandler(verifySvc)

	// Typed-nil guard: a nil *whop.Verifier must not become a non-nil interface.
	var whopVerifier handler.WhopVerifier
	if deps.WhopVerifier != nil {
		whopVerifier = deps.WhopVerifier
	}
	meH := handler.NewMeHandler(whopVerifier)

	r.Get("/api/me", meH.Get)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health-check/{action}", healthH.Ping)

		r.With(sensitiveRL.Limit).Post("/manage/token", manageH.CreateToken)
		r.Get("/manage/preferences", manageH.GetPreferences)
		r.Post("/manage/preferences", manageH.SetPreferences)

		r.With(sensitiveRL.Limit).Post("/verify/{action}", verifyH.Action)
	})

	return r
}
