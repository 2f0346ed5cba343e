package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/amalafoods/payhook/internal/httpkit"
	"github.com/amalafoods/payhook/internal/models"
	"github.com/amalafoods/payhook/internal/pipeline"
)

// requireAdmin guards the admin group with an HS256 bearer token. With no
// secret configured the group is disabled outright rather than left open.
func (a *API) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.jwtSecret == "" {
			httpkit.Error(w, http.StatusServiceUnavailable, "admin endpoints are not configured")
			return
		}

		auth := r.Header.Get("Authorization")
		tokenString, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || tokenString == "" {
			httpkit.Error(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		_, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
			return []byte(a.jwtSecret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			httpkit.Error(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleResend re-runs fulfillment for a paid order.
func (a *API) handleResend(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	report, err := a.processor.Resend(r.Context(), orderID)
	switch {
	case errors.Is(err, models.ErrOrderNotFound):
		httpkit.Error(w, http.StatusNotFound, "order not found")
		return
	case errors.Is(err, pipeline.ErrOrderNotPaid):
		httpkit.Error(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		a.logger.Error("resend failed", "order_id", orderID, "error", err)
		httpkit.Error(w, http.StatusInternalServerError, "resend failed")
		return
	}

	a.logger.Info("fulfillment resent", "order_id", orderID, "failed_steps", report.Failed())
	httpkit.JSON(w, http.StatusOK, report)
}

// handleListAdvisories returns recorded amount mismatches, newest first.
func (a *API) handleListAdvisories(w http.ResponseWriter, r *http.Request) {
	advisories, err := a.advisories.ListAdvisories(r.Context())
	if err != nil {
		a.logger.Error("list advisories failed", "error", err)
		httpkit.Error(w, http.StatusInternalServerError, "could not list advisories")
		return
	}

	out := make([]map[string]any, 0, len(advisories))
	for _, adv := range advisories {
		out = append(out, map[string]any{
			"order_id":      adv.OrderID,
			"provider":      adv.Provider,
			"expected_kobo": adv.ExpectedKobo,
			"reported_kobo": adv.ReportedKobo,
			"created_at":    adv.CreatedAt,
		})
	}
	httpkit.JSON(w, http.StatusOK, map[string]any{"advisories": out})
}
