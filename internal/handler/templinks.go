package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tierhost/tierhost/internal/auth"
	"github.com/tierhost/tierhost/internal/handler/dto"
	"github.com/tierhost/tierhost/internal/service"
)

// TempLinkHandler handles temporary link issuance and redemption.
type TempLinkHandler struct {
	svc           *service.TempLinkService
	publicBaseURL string
	logger        *slog.Logger
}

// NewTempLinkHandler creates a new TempLinkHandler.
func NewTempLinkHandler(svc *service.TempLinkService, publicBaseURL string, logger *slog.Logger) *TempLinkHandler {
	return &TempLinkHandler{
		svc:           svc,
		publicBaseURL: publicBaseURL,
		logger:        logger,
	}
}

// Generate handles GET /exp/generate/{fileID}/?time={seconds}.
func (h *TempLinkHandler) Generate(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFrom(r.Context())
	if principal == nil {
		writeError(w, http.StatusUnauthorized, MsgUnauthenticated)
		return
	}

	link, err := h.svc.Generate(r.Context(), principal, chi.URLParam(r, "fileID"), r.URL.Query().Get("time"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.ToTempLinkResponse(link, baseURL(r, h.publicBaseURL)))
}

// Redeem handles GET /exp/use/{token}/ by redirecting to the file.
func (h *TempLinkHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFrom(r.Context())
	if principal == nil {
		writeError(w, http.StatusUnauthorized, MsgUnauthenticated)
		return
	}

	client := service.ClientInfo{IP: clientIP(r), UserAgent: r.UserAgent()}
	link, err := h.svc.Redeem(r.Context(), principal, chi.URLParam(r, "token"), client)

	w.Header().Set("Cache-Control", "private, max-age=0")
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	http.Redirect(w, r, "/images/"+link.FileID+"/", http.StatusFound)
}
