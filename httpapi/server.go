package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/middleware"
	"github.com/MrEthical07/goGuard/session"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
)

// Config controls cookies, session lifetimes and request limits.
type Config struct {
	SessionCookie   string
	ChallengeCookie string
	DeviceCookie    string
	// CookieSecure should only be false for local development over HTTP.
	CookieSecure bool

	SessionTTL           time.Duration
	PersistentSessionTTL time.Duration

	AllowedOrigins []string

	// RequestsPerMinute bounds all requests per client IP.
	RequestsPerMinute int
	// AuthRequestsPerMinute bounds the unauthenticated login endpoints per
	// client IP.
	AuthRequestsPerMinute int
	RequestTimeout        time.Duration
}

// DefaultConfig returns 12 hour sessions, 14 day remembered sessions and
// secure cookies.
func DefaultConfig() Config {
	return Config{
		SessionCookie:         middleware.DefaultCookieName,
		ChallengeCookie:       "goguard_2fa",
		DeviceCookie:          "goguard_device",
		CookieSecure:          true,
		SessionTTL:            12 * time.Hour,
		PersistentSessionTTL:  14 * 24 * time.Hour,
		RequestsPerMinute:     300,
		AuthRequestsPerMinute: 20,
		RequestTimeout:        30 * time.Second,
	}
}

// Server holds the handlers' collaborators.
type Server struct {
	engine   *goGuard.Engine
	signer   *jwt.Signer
	sessions *session.Store
	verifier *middleware.Verifier
	logger   *slog.Logger
	cfg      Config
}

func New(engine *goGuard.Engine, signer *jwt.Signer, sessions *session.Store, logger *slog.Logger, cfg Config) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.SessionCookie == "" {
		cfg.SessionCookie = def.SessionCookie
	}
	if cfg.ChallengeCookie == "" {
		cfg.ChallengeCookie = def.ChallengeCookie
	}
	if cfg.DeviceCookie == "" {
		cfg.DeviceCookie = def.DeviceCookie
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = def.SessionTTL
	}
	if cfg.PersistentSessionTTL <= 0 {
		cfg.PersistentSessionTTL = def.PersistentSessionTTL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}

	return &Server{
		engine:   engine,
		signer:   signer,
		sessions: sessions,
		verifier: &middleware.Verifier{
			Signer:     signer,
			Sessions:   sessions,
			CookieName: cfg.SessionCookie,
			Lifetime:   cfg.PersistentSessionTTL,
		},
		logger: logger,
		cfg:    cfg,
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(s.cfg.RequestTimeout))
	if s.cfg.RequestsPerMinute > 0 {
		r.Use(httprate.LimitByIP(s.cfg.RequestsPerMinute, time.Minute))
	}
	if len(s.cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	r.Use(middleware.ClientContext)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		if s.cfg.AuthRequestsPerMinute > 0 {
			r.Use(httprate.LimitByIP(s.cfg.AuthRequestsPerMinute, time.Minute))
		}
		r.Post("/login", s.handleLogin)
		r.Post("/2fa/verify", s.handleVerifyTwoFactor)
		r.Post("/2fa/recovery", s.handleRecoveryLogin)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireStrict(s.verifier))

		r.Post("/logout", s.handleLogout)
		r.Get("/2fa/status", s.handleTwoFactorStatus)
		r.Post("/2fa/setup/initiate", s.handleSetupInitiate)
		r.Post("/2fa/setup/verify", s.handleSetupVerify)
		r.Post("/2fa/disable", s.handleDisable)
		r.Post("/2fa/forget-devices", s.handleForgetDevices)
		r.Post("/recovery-codes/regenerate", s.handleRegenerate)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireAdministrator)

			r.Post("/reveal-config", s.handleReveal)
			r.Get("/config/{service}", s.handleListConfiguration)
			r.Get("/security-report", s.handleSecurityReport)
			r.Post("/users/{userID}/lock", s.handleLockUser)
			r.Post("/users/{userID}/unlock", s.handleUnlockUser)
			r.Post("/users/{userID}/roles", s.handleAssignRole)
			r.Delete("/users/{userID}/roles/{role}", s.handleRemoveRole)
		})
	})

	return r
}
