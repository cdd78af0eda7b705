package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ImageServer отдаёт сохранённые картинки (blob.Store).
type ImageServer interface {
	Serve(w http.ResponseWriter, r *http.Request, name string)
}

type ImageHandler struct {
	images ImageServer
}

func NewImageHandler(images ImageServer) *ImageHandler {
	return &ImageHandler{images: images}
}

// Serve — GET /api/images/{name}.
func (h *ImageHandler) Serve(w http.ResponseWriter, r *http.Request) {
	h.images.Serve(w, r, chi.URLParam(r, "name"))
}
