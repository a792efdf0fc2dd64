// Package httpapi wires the HTTP transport (Gin) to the queue services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging, panic recovery, metrics, CORS,
// security headers, compression, and rate limiting.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-clinic-queue/docs"
	"github.com/tbourn/go-clinic-queue/internal/config"
	"github.com/tbourn/go-clinic-queue/internal/http/handlers"
	"github.com/tbourn/go-clinic-queue/internal/http/middleware"
	"github.com/tbourn/go-clinic-queue/internal/services"
)

// maxBodyBytes caps request bodies; the largest payload is a note of a few KiB.
const maxBodyBytes = 64 << 10

// Services are the application services exposed over HTTP.
type Services struct {
	Tickets     handlers.TicketService
	Assessments handlers.AssessmentService
	Doctors     handlers.DoctorService
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured access logs, request-scoped logger
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. CORS and security headers
//  8. gzip for queue listings
//
// Swagger UI is served under /swagger/ only when cfg.SwaggerEnabled is set.
// The rate limiter is installed on mutating API routes only, so staff
// dashboards polling GET /queue are never throttled.
func RegisterRoutes(r *gin.Engine, svc Services, db *gorm.DB, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	allowHeaders := []string{"Origin", "Content-Type", "Accept", "If-None-Match",
		handlers.HeaderUserID, handlers.HeaderSessionID}
	exposeHeaders := []string{"X-Request-ID", "ETag", "Location", "Retry-After"}
	methods := []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"}

	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     methods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     methods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness and readiness
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/ready", readiness(db))

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(svc.Tickets, svc.Assessments, svc.Doctors)
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByOwnerOrIP())
	limited := rl.Handler()

	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS: cfg.Security.EnableHSTS,
		HSTSMaxAge: cfg.Security.HSTSMaxAge,
		NoStore:    true,
	}))
	{
		// Doctors
		api.GET("/doctors", h.ListDoctors)
		api.PUT("/doctors/:id", h.UpsertDoctor)

		// Queue and tickets
		api.GET("/queue", h.ListQueue)
		api.POST("/doctors/:id/tickets", limited, h.CreateTicket)
		api.POST("/doctors/:id/call-next", h.CallNext)
		api.POST("/doctors/:id/reset", h.ResetQueue)
		api.GET("/tickets/:id", h.GetTicket)
		api.PATCH("/tickets/:id", h.UpdateTicket)
		api.POST("/tickets/:id/finish", h.FinishTicket)
		api.POST("/tickets/:id/withdraw", limited, h.WithdrawTicket)
		api.POST("/tickets/:id/resume", limited, h.ResumeTicket)

		// Urgency assessments
		api.POST("/assessments", limited, h.StartAssessment)
		api.GET("/assessments/:id", h.GetAssessment)
		api.POST("/assessments/:id/answers", limited, h.SubmitAnswer)
	}
}

// readiness pings the database with a short deadline.
func readiness(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			err = sqlDB.PingContext(ctx)
			cancel()
		}
		if err != nil {
			_ = c.Error(err)
			handlers.Fail(c, http.StatusServiceUnavailable, string(services.KindServiceUnavailable), "database unavailable")
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
