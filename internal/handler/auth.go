package handler

import (
	"context"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	appI18n "github.com/pavelanni/quizen/internal/i18n"
)

type operatorKey struct{}

// OperatorFromContext returns the authenticated operator's username.
func OperatorFromContext(ctx context.Context) string {
	name, _ := ctx.Value(operatorKey{}).(string)
	return name
}

// requireOperator checks HTTP basic credentials against the operators table.
func (h *Handler) requireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok || username == "" {
			h.unauthorized(w, r)
			return
		}

		op, err := h.store.GetOperator(r.Context(), username)
		if err != nil {
			h.serverError(w, "get operator", err)
			return
		}
		if op == nil || !op.Active {
			h.logger.Warn("rejected operator", "username", username)
			h.unauthorized(w, r)
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)); err != nil {
			h.logger.Warn("operator password mismatch", "username", username)
			h.unauthorized(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), operatorKey{}, op.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) unauthorized(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", `Basic realm="quizen", charset="UTF-8"`)
	writeError(w, http.StatusUnauthorized, appI18n.T(r.Context(), "Unauthorized"))
}
