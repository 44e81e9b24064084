// Package server provides the ops HTTP server of the scheduler.
//
// The server uses the Gin web framework. It is separate from the worker
// transport in pkg/eventqueue: workers never talk to it.
//
// # Architecture Overview
//
//	┌───────────────────────────────────────────────────────────────┐
//	│                         HTTP Server                           │
//	├───────────────────────────────────────────────────────────────┤
//	│                       Middleware Stack                        │
//	│  ┌─────────────────────────────────────────────────────────┐  │
//	│  │  Logger (request/response logging)                      │  │
//	│  │  Recovery (panic recovery with zap logging)             │  │
//	│  └─────────────────────────────────────────────────────────┘  │
//	├───────────────────────────────────────────────────────────────┤
//	│  /health   /metrics                 (never authenticated)     │
//	├───────────────────────────────────────────────────────────────┤
//	│                       Router (/api/v1)                        │
//	│  ┌─────────────────────────────────────────────────────────┐  │
//	│  │  Authenticator (bearer JWT, only when auth is enabled)  │  │
//	│  │  Handlers (registered via callback)                     │  │
//	│  └─────────────────────────────────────────────────────────┘  │
//	└───────────────────────────────────────────────────────────────┘
//
// # Server Modes
//
// ServerMode "dev" runs Gin in debug mode, "prod" in release mode. Both serve
// plain HTTP; TLS is expected to terminate in front of the scheduler.
//
// # Server Lifecycle
//
//	srv, err := server.NewServer(cfg, func(router *gin.RouterGroup) {
//	    handler.Register(router)
//	}, server.WithMetrics(metrics.Handler(reg)))
//
//	go func() {
//	    if err := srv.Start(ctx); !errors.Is(err, http.ErrServerClosed) {
//	        zap.S().Errorw("server error", "error", err)
//	    }
//	}()
//
//	<-shutdownCh
//	srv.Stop(ctx)
//
// # Authentication
//
// With Auth.Enabled the /api/v1 group requires an HS256 bearer token signed
// with the secret read from Auth.JWTSecretFile. Tokens must carry an expiry
// and the "fnscheduler" issuer; middlewares.SignToken issues them.
package server
