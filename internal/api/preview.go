package api

import (
	"net/http"

	"github.com/ashureev/mobilecoder/internal/preview"
)

// PreviewCSP confines the composed document to the capabilities of the preview frame.
const PreviewCSP = "sandbox allow-scripts allow-modals allow-forms allow-popups"

type previewResponse struct {
	EntryID     string `json:"entryId,omitempty"`
	EntryName   string `json:"entryName,omitempty"`
	Placeholder bool   `json:"placeholder"`
	DataURL     string `json:"dataUrl"`
}

// Preview handles GET /api/preview. The document is recomputed on every request.
// ?format=json returns the document as a data URL instead of HTML.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}
	nodes, activeID := ws.Snapshot()
	doc := preview.Compose(nodes, activeID)

	if r.URL.Query().Get("format") == "json" {
		JSON(w, http.StatusOK, previewResponse{
			EntryID:     doc.EntryID,
			EntryName:   doc.EntryName,
			Placeholder: doc.IsPlaceholder(),
			DataURL:     doc.DataURL(),
		})
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Security-Policy", PreviewCSP)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc.HTML))
}
