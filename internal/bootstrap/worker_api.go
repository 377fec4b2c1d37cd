package bootstrap

import (
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"calsync_server/adapter/in/http"
	"calsync_server/infra/middleware"
)

const (
	loginAttempts = 10
	loginWindow   = time.Minute
)

// NewAPI builds the Fiber app for the user-facing routes.
func NewAPI(d *Dependencies) *fiber.App {
	cfg := d.Config

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		StrictRouting:         false,
		CaseSensitive:         false,

		// go-json for request and response bodies
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		BodyLimit:    1 * 1024 * 1024,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute, // POST /sync runs a whole pass
		ServerHeader: "",
	})

	// Global middleware stack (order matters)
	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.RequestLogger())

	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	allowCredentials := allowOrigins != "" && allowOrigins != "*"
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Request-ID,X-Admin-Token",
		ExposeHeaders:    "X-Request-ID",
		AllowCredentials: allowCredentials,
		MaxAge:           86400,
	}))

	guards := http.Guards{
		Session:     middleware.SessionAuth(d.Sessions, false),
		Redirect:    middleware.SessionAuth(d.Sessions, true),
		Admin:       middleware.AdminToken(cfg.AdminToken, false),
		AdminCreate: middleware.AdminToken(cfg.AdminToken, true),
		Login:       middleware.LoginLimiter(loginAttempts, loginWindow),
	}

	http.NewHealthHandler(d.HealthChecks).Register(app)
	http.NewUserHandler(d.UserService).Register(app, guards)
	http.NewOAuthHandler(d.OAuthService).Register(app, guards)
	http.NewSyncHandler(d.SyncService, d.OAuthService).Register(app, guards)

	return app
}
