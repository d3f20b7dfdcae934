package httpx

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/you/authsvc/internal/http/handlers"
	"github.com/you/authsvc/internal/http/middleware"
)

// maxBodyBytes bounds every JSON request body
const maxBodyBytes = 64 << 10

// RouterDeps carries everything the router mounts. Limiter, Metrics and
// Policies may be nil.
type RouterDeps struct {
	Auth     *handlers.AuthHandlers
	Policies *handlers.PolicyHandlers
	Health   *handlers.HealthHandlers
	JWT      *middleware.AuthMW
	Casbin   *middleware.CasbinMW
	Limiter  *middleware.RateLimiter
	Metrics  http.Handler
	Logger   *slog.Logger
}

func BuildRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(d.Logger), middleware.SecurityHeaders())

	r.GET("/health", d.Health.Health)
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics))
	}

	auth := r.Group("/auth", middleware.MaxBodyBytes(maxBodyBytes))
	public := auth.Group("")
	if d.Limiter != nil {
		public.Use(d.Limiter.Middleware())
	}
	public.POST("/login", d.Auth.Login)
	public.POST("/otp/verify", d.Auth.VerifyOTP)
	public.POST("/otp/resend", d.Auth.ResendOTP)
	public.POST("/forgot-password", d.Auth.ForgotPassword)
	public.POST("/reset-password", d.Auth.ResetPassword)
	public.POST("/google", d.Auth.GoogleLogin)
	auth.POST("/logout", d.Auth.Logout)

	protected := auth.Group("", d.JWT.WithJWT(), d.Casbin.Enforce())
	protected.GET("/me", d.Auth.Me)

	if d.Policies != nil {
		adm := r.Group("/admin", d.JWT.WithJWT(), d.Casbin.Enforce())
		adm.GET("/policies", d.Policies.List)
	}

	return r
}
