package handler

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/leadsmagics/crm-backend/internal/service"
)

// transparentGIF is a 1x1 transparent pixel.
var transparentGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// TrackingHandler serves the endpoints embedded in outgoing emails.
// These are hit by mail clients and link scanners, so they always
// answer successfully regardless of what the token resolves to.
type TrackingHandler struct {
	Tracking *service.TrackingService
}

// Open records the open and returns the pixel. Always 200, even for a
// garbage token, so broken images never appear in the email body.
func (h *TrackingHandler) Open(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	h.Tracking.RecordOpen(token)

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(transparentGIF); err != nil {
		log.Println("writing tracking pixel:", err)
	}
}

// Click records the click and redirects to the original destination.
func (h *TrackingHandler) Click(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	target := r.URL.Query().Get("url")
	redirect := h.Tracking.RecordClick(token, target)
	http.Redirect(w, r, redirect, http.StatusFound)
}

// Unsubscribe handles both the browser link (GET) and the one-click
// List-Unsubscribe-Post request mail clients send (POST).
func (h *TrackingHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if err := h.Tracking.RecordUnsubscribe(token); err != nil {
		// An unknown token still gets the confirmation page; there is
		// nothing useful a recipient could do with an error.
		log.Printf("unsubscribe: token %s: %v", token, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("<html><body><h1>You have been unsubscribed.</h1><p>You will no longer receive emails from this sender.</p></body></html>"))
}
