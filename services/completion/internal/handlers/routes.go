package handlers

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/bunnyvideo/internal/platform/auth"
	"github.com/example/bunnyvideo/services/completion/internal/authority"
	"github.com/example/bunnyvideo/services/completion/internal/engine"
)

type Deps struct {
	Authority *authority.Authority
	Reader    *engine.Reader
	Host      *engine.HostState
	Verifier  auth.JWTVerifier
	Limiter   *RateLimiter
	Log       *zap.Logger
}

// Mount registers the /v1 API on r. Every route requires a bearer token.
func Mount(r chi.Router, d Deps) {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	r.Route("/v1", func(r chi.Router) {
		r.Use(auth.RequireUser(d.Verifier))
		if d.Limiter != nil {
			r.Use(d.Limiter.Middleware)
		}

		r.Post("/completion", Completion(d.Authority, log))
		r.Get("/videos/{video_id}/completion", CompletionStatus(d.Authority))

		r.Route("/admin", func(r chi.Router) {
			r.With(auth.RequireCapability(auth.CapConfigureVideo)).Put("/videos/{video_id}", ConfigureVideo(d.Authority))
			r.With(auth.RequireCapability(auth.CapConfigureVideo)).Delete("/videos/{video_id}", DeleteVideo(d.Authority))
			r.With(auth.RequireCapability(auth.CapReadAnyCompletion)).Get("/videos/{video_id}", GetVideo(d.Authority))
			r.With(auth.RequireCapability(auth.CapReadAnyCompletion)).Get("/videos/{video_id}/overrides", ListOverrides(d.Authority))
			r.With(auth.RequireCapability(auth.CapOverrideCompletion)).Post("/videos/{video_id}/users/{user_id}/override", ForceState(d.Authority))
			r.With(auth.RequireCapability(auth.CapReconcile)).Post("/reconcile", Reconcile(d.Authority))
		})

		if d.Reader != nil && d.Host != nil {
			const enginePath = "/engine/videos/{video_id}/users/{user_id}"
			r.With(auth.RequireCapability(auth.CapReadAnyCompletion)).Get(enginePath, EngineState(d.Reader))
			r.With(auth.RequireCapability(auth.CapReconcile)).Put(enginePath, ReportHostState(d.Host))
		}
	})
}
