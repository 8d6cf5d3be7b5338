package ingest

import (
	"io"
	"net/http"

	"github.com/go-chi/render"
	"go.uber.org/zap"

	"safewatch/internal/config"
	"safewatch/internal/model"
)

// RESTHandler accepts POSTed readings, one object or an array of them.
type RESTHandler struct {
	cfg    *config.Manager
	out    chan<- model.Reading
	logger *zap.Logger
}

func NewRESTHandler(cfg *config.Manager, out chan<- model.Reading, logger *zap.Logger) *RESTHandler {
	return &RESTHandler{cfg: cfg, out: out, logger: logger}
}

func (h *RESTHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 2<<20))
	if err != nil || len(body) == 0 {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]interface{}{"success": false, "message": "empty or oversized body"})
		return
	}
	if _, err := ParseJSONPayload(body); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]interface{}{"success": false, "message": "invalid JSON"})
		return
	}
	accepted, failed := decodeAndSend(r.Context(), body, "rest", h.cfg.Get(), h.out, h.logger)
	status := http.StatusAccepted
	if accepted == 0 {
		status = http.StatusBadRequest
	}
	render.Status(r, status)
	render.JSON(w, r, map[string]interface{}{
		"accepted": accepted,
		"failed":   failed,
	})
}
