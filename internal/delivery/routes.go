package delivery

import (
	"time"

	"github.com/Vovarama1992/go-utils/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

func RegisterRoutes(r chi.Router, h *JobHandler) {
	r.Route("/jobs", func(jr chi.Router) {
		jr.Use(httputil.RecoverMiddleware)

		// uploads are expensive; keep one client from flooding the queue
		jr.With(httprate.LimitByIP(10, time.Minute)).
			Post("/", h.Submit)

		jr.Get("/", h.List)
		jr.Get("/{job_id}", h.Get)
		jr.Post("/{job_id}/retry", h.Retry)
		jr.Get("/{job_id}/subtitles", h.Subtitles)
		jr.Get("/{job_id}/video", h.Video)
	})
}
