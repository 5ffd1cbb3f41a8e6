package handler

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pavelanni/sahayak/internal/handler/views"
	appI18n "github.com/pavelanni/sahayak/internal/i18n"
	"github.com/pavelanni/sahayak/internal/model"
)

const (
	visitorCookieName = "visitor"
	csrfCookieName    = "csrf_token"
	csrfHeaderName    = "X-CSRF-Token"

	// Memory kept for multipart forms; larger uploads spill to temp files.
	multipartMemory = 8 << 20
)

type visitorCtxKey struct{}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

// visitorMiddleware identifies the browser with a random cookie so each
// visitor gets their own workspace. There are no accounts.
func (h *Handler) visitorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := ""
		if c, err := r.Cookie(visitorCookieName); err == nil {
			key = c.Value
		}
		if key == "" {
			token, err := generateToken()
			if err != nil {
				slog.Error("failed to generate visitor token", "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			key = token
			http.SetCookie(w, &http.Cookie{
				Name:     visitorCookieName,
				Value:    key,
				Path:     h.cookiePath(),
				HttpOnly: true,
				Secure:   h.config.SecureCookies,
				SameSite: http.SameSiteLaxMode,
			})
		}
		ctx := context.WithValue(r.Context(), visitorCtxKey{}, key)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func visitorFromContext(ctx context.Context) string {
	key, _ := ctx.Value(visitorCtxKey{}).(string)
	return key
}

// csrfMiddleware implements double-submit cookies. Safe methods get a token
// (reusing the cookie if present); unsafe methods must echo it in the
// csrf_token form field or the X-CSRF-Token header.
func (h *Handler) csrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			token := ""
			if c, err := r.Cookie(csrfCookieName); err == nil {
				token = c.Value
			}
			if token == "" {
				var err error
				if token, err = generateToken(); err != nil {
					slog.Error("failed to generate CSRF token", "error", err)
					http.Error(w, "internal error", http.StatusInternalServerError)
					return
				}
				http.SetCookie(w, &http.Cookie{
					Name:     csrfCookieName,
					Value:    token,
					Path:     h.cookiePath(),
					HttpOnly: false,
					Secure:   h.config.SecureCookies,
					SameSite: http.SameSiteLaxMode,
				})
			}
			ctx := model.ContextWithCSRFToken(r.Context(), token)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		cookie, err := r.Cookie(csrfCookieName)
		if err != nil || cookie.Value == "" {
			slog.Warn("CSRF cookie missing")
			http.Error(w, "csrf token missing", http.StatusForbidden)
			return
		}
		r = r.WithContext(model.ContextWithCSRFToken(r.Context(), cookie.Value))

		if err := h.parseForm(w, r); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				h.renderUploadTooLarge(w, r)
				return
			}
			http.Error(w, "invalid form", http.StatusBadRequest)
			return
		}

		formToken := r.Header.Get(csrfHeaderName)
		if formToken == "" {
			formToken = r.PostFormValue("csrf_token")
		}
		if formToken == "" {
			slog.Warn("CSRF form token missing")
			http.Error(w, "csrf token missing", http.StatusForbidden)
			return
		}

		if len(formToken) != len(cookie.Value) || subtle.ConstantTimeCompare([]byte(formToken), []byte(cookie.Value)) != 1 {
			slog.Warn("CSRF token mismatch")
			http.Error(w, "invalid csrf token", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// parseForm reads the request body within the upload limit.
func (h *Handler) parseForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes())
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return r.ParseMultipartForm(multipartMemory)
	}
	return r.ParseForm()
}

func (h *Handler) maxBodyBytes() int64 {
	mb := h.maxUploadMB()
	// Room for the other form fields and multipart framing.
	return int64(mb)<<20 + 64<<10
}

func (h *Handler) renderUploadTooLarge(w http.ResponseWriter, r *http.Request) {
	form := h.sourceForm(views.KindDocument)
	form.Error = appI18n.Td(r.Context(), "ErrorFileTooLarge", map[string]any{"MB": form.MaxUploadMB})
	h.renderSourceError(w, r, http.StatusRequestEntityTooLarge, form)
}
