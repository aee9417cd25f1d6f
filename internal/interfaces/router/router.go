package router

import (
	"errors"
	"net/http"
	"time"

	auditsvc "brokerdesk-backend/internal/application/audit"
	authsvc "brokerdesk-backend/internal/application/auth"
	brokeragesvc "brokerdesk-backend/internal/application/brokerages"
	documentsvc "brokerdesk-backend/internal/application/documents"
	"brokerdesk-backend/internal/application/emails"
	"brokerdesk-backend/internal/application/events"
	healthsvc "brokerdesk-backend/internal/application/health"
	kycsvc "brokerdesk-backend/internal/application/kyc"
	notificationsvc "brokerdesk-backend/internal/application/notifications"
	portfoliosvc "brokerdesk-backend/internal/application/portfolios"
	"brokerdesk-backend/internal/application/realtime"
	supportsvc "brokerdesk-backend/internal/application/support"
	tradesvc "brokerdesk-backend/internal/application/trades"
	txsvc "brokerdesk-backend/internal/application/transactions"
	usersvc "brokerdesk-backend/internal/application/user"
	"brokerdesk-backend/internal/config"
	"brokerdesk-backend/internal/infrastructure/database"
	"brokerdesk-backend/internal/infrastructure/payments"
	"brokerdesk-backend/internal/infrastructure/session"
	audithandler "brokerdesk-backend/internal/interfaces/handlers/audit"
	authhandler "brokerdesk-backend/internal/interfaces/handlers/auth"
	brokeragehandler "brokerdesk-backend/internal/interfaces/handlers/brokerages"
	documenthandler "brokerdesk-backend/internal/interfaces/handlers/documents"
	healthhandler "brokerdesk-backend/internal/interfaces/handlers/health"
	kychandler "brokerdesk-backend/internal/interfaces/handlers/kyc"
	notificationhandler "brokerdesk-backend/internal/interfaces/handlers/notifications"
	payhandler "brokerdesk-backend/internal/interfaces/handlers/payments"
	portfoliohandler "brokerdesk-backend/internal/interfaces/handlers/portfolios"
	supporthandler "brokerdesk-backend/internal/interfaces/handlers/support"
	tradehandler "brokerdesk-backend/internal/interfaces/handlers/trades"
	txhandler "brokerdesk-backend/internal/interfaces/handlers/transactions"
	userhandler "brokerdesk-backend/internal/interfaces/handlers/users"
	"brokerdesk-backend/internal/middleware"
	"brokerdesk-backend/internal/pkg/async"
	"brokerdesk-backend/internal/pkg/constants"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// CreateApp opens Postgres and Redis from cfg and builds the API on top of them.
func CreateApp(cfg *config.Config) (*fiber.App, *gorm.DB, *redis.Client, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil, nil, errors.New("DATABASE_URL is not set")
	}
	if cfg.RedisURL == "" {
		return nil, nil, nil, errors.New("REDIS_URL is not set")
	}
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, err
	}
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, nil, err
	}
	rdb := redis.NewClient(opt)
	return New(cfg, db, rdb, async.Go), db, rdb, nil
}

// New wires every service and route on already-open connections. run executes background
// side effects (emails, push, desk sync); tests pass async.Inline.
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client, run async.Runner) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.ErrorHandler,
		EnableTrustedProxyCheck: true,
	})

	sessions := session.NewStore(rdb)
	hub := realtime.NewHub(rdb)
	publishers := []events.Publisher{hub}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		publishers = append(publishers, kp)
		app.Hooks().OnShutdown(kp.Close)
	}
	fanout := events.NewFanout(publishers...)

	var mailer emails.Sender
	if cfg.SendinblueAPIKey != "" {
		mailer = &emails.BrevoClient{APIKey: cfg.SendinblueAPIKey, MailFrom: cfg.MailFrom}
	}
	notifier := &notificationsvc.Service{DB: db, Async: run}
	if cfg.PushAPIURL != "" {
		notifier.Sender = &notificationsvc.PushClient{BaseURL: cfg.PushAPIURL, ServerKey: cfg.PushServerKey}
	}

	txs := &txsvc.Service{
		DB: db,
		Checkout: &payments.StripeCheckout{
			SecretKey:  cfg.StripeSecretKey,
			SuccessURL: cfg.CheckoutSuccessURL,
			CancelURL:  cfg.CheckoutCancelURL,
		},
		Events:   fanout,
		Notifier: notifier,
		Emails:   mailer,
		Async:    run,
	}

	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedSuffix:  cfg.FrontendURLEndsWith,
		DevPassword:    cfg.DevPassword,
		AllowLocalhost: cfg.Env != "production",
	}))

	// Stripe signs the raw body, so the webhook is registered ahead of the session layer.
	stripeWebhook := &payhandler.WebhookHandler{DB: db, Deposits: txs, WebhookSecret: cfg.StripeWebhookSecret}
	app.Post("/api/v1/stripe/webhook", stripeWebhook.HandleWebhook)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := middleware.NewMetrics(reg)

	app.Use(middleware.Tracing())
	app.Use(middleware.Session(sessions))
	app.Use(middleware.HealthMarker(rdb))
	app.Use(metrics.Handler())
	app.Use(middleware.RouteLogger())

	probes := map[string]string{}
	if cfg.KYCBaseURL != "" {
		probes["kyc"] = cfg.KYCBaseURL
	}
	if cfg.SupportDeskURL != "" {
		probes["support_desk"] = cfg.SupportDeskURL
	}
	hh := &healthhandler.Handlers{
		Service:        &healthsvc.Service{DB: db, Rdb: rdb, Probes: probes, Timeout: 3 * time.Second},
		HealthAdminKey: cfg.HealthAdminKey,
	}
	app.Get("/health/json", hh.JSON)
	app.Get("/health/errors", hh.Errors)
	app.Get("/reset", hh.Reset)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	sessionCfg := middleware.SessionConfig{
		AllowCrossSiteDev: cfg.AllowCrossSiteDev,
		IsProduction:      cfg.Env == "production",
	}
	auth := middleware.RequireAuth()
	can := middleware.AuthorizePermission
	api := app.Group("/api/v1")

	// Auth
	us := &usersvc.Service{DB: db, Sessions: sessions, Emails: mailer, Async: run}
	ah := &authhandler.Handlers{Service: &authsvc.Service{DB: db, Sessions: sessions}, Users: us, Config: sessionCfg}
	limiter := middleware.NewRateLimiter(10, 5)
	api.Post("/auth/register", limiter.Handler(), ah.Register)
	api.Post("/auth/login", limiter.Handler(), ah.Login)
	api.Get("/auth/me", auth, ah.Me)
	api.Delete("/auth/logout", ah.Logout)

	// Users
	uh := &userhandler.Handlers{Service: us}
	ug := api.Group("/users", auth)
	ug.Get("/me", uh.Me)
	ug.Patch("/me", uh.UpdateMe)
	ug.Get("/:id", uh.ViewUser)
	ug.Patch("/:id/role", can(constants.AssignRole), uh.UpdateRole)
	ug.Post("/:id/suspend", can(constants.AssignRole), uh.Suspend)
	ug.Post("/:id/reactivate", can(constants.AssignRole), uh.Reactivate)

	// KYC
	kh := &kychandler.Handlers{
		Service: &kycsvc.Service{
			DB:       db,
			Provider: &kycsvc.Client{BaseURL: cfg.KYCBaseURL, APIToken: cfg.KYCAPIToken},
			Sessions: sessions,
			Emails:   mailer,
			Notifier: notifier,
			Events:   fanout,
			Async:    run,
		},
		WebhookSecret: cfg.KYCWebhookSecret,
	}
	api.Post("/kyc/start", auth, kh.Start)
	api.Post("/kyc/webhook", kh.Webhook)

	// Brokerages
	bh := &brokeragehandler.Handlers{Service: &brokeragesvc.Service{DB: db, Sessions: sessions}}
	bg := api.Group("/brokerages", auth)
	bg.Post("/", can(constants.ManageBrokerages), bh.Create)
	bg.Get("/", bh.List)
	bg.Get("/:id", bh.Get)
	bg.Post("/:id/members", can(constants.ManageBrokerageMembers), bh.AddMember)
	bg.Delete("/:id/members/:user_id", can(constants.ManageBrokerageMembers), bh.RemoveMember)

	// Portfolios and their money movements
	ph := &portfoliohandler.Handlers{Service: &portfoliosvc.Service{DB: db, DefaultCurrency: cfg.Currency}, Hub: hub}
	txh := &txhandler.Handlers{Service: txs}
	pg := api.Group("/portfolios", auth)
	pg.Post("/", ph.Create)
	pg.Get("/", ph.List)
	pg.Get("/:id", ph.Get)
	pg.Post("/:id/deposits", can(constants.Deposit), txh.Deposit)
	pg.Post("/:id/withdrawals", can(constants.Withdraw), txh.Withdraw)
	pg.Get("/:id/transactions", txh.List)
	api.Get("/stream/portfolios/:id", auth, ph.Stream)

	xg := api.Group("/transactions", auth)
	xg.Get("/:id", txh.Get)
	xg.Post("/:id/process", can(constants.ProcessWithdrawal), txh.Process)
	xg.Post("/:id/cancel", txh.Cancel)

	// Trades
	th := &tradehandler.Handlers{Service: &tradesvc.Service{
		DB:                  db,
		LargeTradeThreshold: cfg.LargeTradeThreshold,
		Events:              fanout,
		Notifier:            notifier,
	}}
	tg := api.Group("/trades", auth)
	tg.Post("/", can(constants.PlaceTrade), th.Create)
	tg.Get("/", th.List)
	tg.Get("/:id", th.Get)
	tg.Post("/:id/endorse", can(constants.EndorseTrade), th.Endorse)
	tg.Post("/:id/broker-approve", can(constants.ApproveTrade), th.BrokerApprove)
	tg.Post("/:id/client-approve", th.ClientApprove)
	tg.Post("/:id/cancel", th.Cancel)

	// Audit
	adh := &audithandler.Handlers{Service: &auditsvc.Service{DB: db}}
	api.Get("/audit-logs", auth, can(constants.ViewAuditLogs), adh.List)

	// Support
	var desk supportsvc.Desk
	if cfg.SupportDeskURL != "" {
		desk = &supportsvc.DeskClient{BaseURL: cfg.SupportDeskURL, Email: cfg.SupportDeskEmail, Token: cfg.SupportDeskToken}
	}
	sh := &supporthandler.Handlers{
		Service:       &supportsvc.Service{DB: db, Desk: desk, Events: fanout, Notifier: notifier, Async: run},
		WebhookSecret: cfg.SupportWebhookSecret,
	}
	api.Post("/support/webhook", sh.Webhook)
	sg := api.Group("/support/tickets", auth)
	sg.Post("/", sh.Create)
	sg.Get("/", sh.List)
	sg.Get("/:id", sh.Get)
	sg.Patch("/:id/status", can(constants.ManageTickets), sh.UpdateStatus)

	// Notifications
	nh := &notificationhandler.Handlers{Service: notifier}
	api.Post("/notifications/tokens", auth, nh.RegisterToken)
	api.Delete("/notifications/tokens/:token", auth, nh.RemoveToken)

	// Documents
	storage := &documentsvc.SupabaseStorage{BaseURL: cfg.SupabaseURL, SecretKey: cfg.SupabaseSecretKey}
	dh := &documenthandler.Handlers{Service: &documentsvc.Service{DB: db, Storage: storage}}
	dg := api.Group("/documents", auth)
	dg.Post("/", dh.RequestUpload)
	dg.Get("/", dh.List)
	dg.Post("/:id/confirm", dh.ConfirmUpload)

	log.Debug().Int("routes", len(app.GetRoutes())).Bool("kafka", len(cfg.KafkaBrokers) > 0).
		Bool("email", mailer != nil).Bool("push", notifier.Sender != nil).Msg("router ready")
	return app
}

func Handler(app *fiber.App) http.Handler {
	return adaptor.FiberApp(app)
}
