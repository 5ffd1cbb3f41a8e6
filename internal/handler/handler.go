package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/sahayak/internal/backend"
	"github.com/pavelanni/sahayak/internal/handler/views"
	appI18n "github.com/pavelanni/sahayak/internal/i18n"
	"github.com/pavelanni/sahayak/internal/model"
	"github.com/pavelanni/sahayak/internal/quiz"
	"github.com/pavelanni/sahayak/internal/workspace"
)

const defaultMaxUploadMB = 10

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	workspaces *workspace.Manager
	config     model.UIConfig
}

// New creates a new Handler.
func New(m *workspace.Manager, cfg model.UIConfig) (*Handler, error) {
	if m == nil {
		return nil, errors.New("workspace manager is required")
	}
	return &Handler{workspaces: m, config: cfg}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(h.visitorMiddleware)
		r.Use(h.csrfMiddleware)

		r.Get("/", h.handleIndex)
		r.Get("/panel/{tab}", h.handlePanel)
		r.Post("/ingest/{kind}", h.handleIngest)
		r.Post("/chat", h.handleChat)
		r.Post("/summary", h.handleSummary)
		r.Post("/quiz/generate", h.handleGenerateQuiz)
		r.Post("/quiz/answer", h.handleAnswer)
		r.Post("/quiz/reset", h.handleResetQuiz)
		r.Post("/session/reset", h.handleEndSession)
	})
}

// Mount registers the routes on r under the configured base path.
func (h *Handler) Mount(r chi.Router) {
	basePath := h.config.BasePath
	if basePath == "" {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
		return
	}
	r.Route(basePath, func(sub chi.Router) {
		sub.Use(h.BasePathMiddleware)
		h.Routes(sub)
	})
	r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
	})
}

// BasePathMiddleware makes the configured URL prefix available to views.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func (h *Handler) maxUploadMB() int {
	if h.config.MaxUploadMB <= 0 {
		return defaultMaxUploadMB
	}
	return h.config.MaxUploadMB
}

func (h *Handler) workspace(r *http.Request) *workspace.Workspace {
	return h.workspaces.GetOrCreate(visitorFromContext(r.Context()))
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// redirect sends the browser to p under the base path. htmx requests get
// an HX-Redirect header instead of a 303 so the whole page is replaced.
func (h *Handler) redirect(w http.ResponseWriter, r *http.Request, p string) {
	target := h.path(p)
	if isHTMX(r) {
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

// backendContext detaches backend calls from the request so a navigation
// away does not abort a summary or quiz other requests are waiting on. The
// backend client applies its own timeout.
func backendContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func sourceKind(s string) string {
	switch s {
	case views.KindPage, views.KindVideo:
		return s
	default:
		return views.KindDocument
	}
}

func dashboardTab(s string) string {
	switch s {
	case views.TabSummary, views.TabQuiz:
		return s
	default:
		return views.TabChat
	}
}

func (h *Handler) sourceForm(kind string) views.SourceForm {
	return views.SourceForm{Kind: sourceKind(kind), MaxUploadMB: h.maxUploadMB()}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	v := h.workspace(r).View()
	if !v.Active() {
		render(w, r, http.StatusOK, views.SourcePage(h.sourceForm(r.URL.Query().Get("source"))))
		return
	}

	render(w, r, http.StatusOK, views.DashboardPage(views.Dashboard{
		View:        v,
		Tab:         dashboardTab(r.URL.Query().Get("tab")),
		AutoSummary: v.Summary == "" && !v.Summarizing,
	}))
}

func (h *Handler) handlePanel(w http.ResponseWriter, r *http.Request) {
	v := h.workspace(r).View()
	if !v.Active() {
		h.redirect(w, r, "/")
		return
	}
	render(w, r, http.StatusOK, views.Panel(dashboardTab(chi.URLParam(r, "tab")), v))
}

func (h *Handler) renderSourceError(w http.ResponseWriter, r *http.Request, status int, form views.SourceForm) {
	if isHTMX(r) {
		// htmx only swaps successful responses.
		render(w, r, http.StatusOK, views.SourceSection(form))
		return
	}
	render(w, r, status, views.SourcePage(form))
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	kind, err := backend.ParseSourceKind(chi.URLParam(r, "kind"))
	if err != nil {
		http.Error(w, "unknown source kind", http.StatusNotFound)
		return
	}

	form := h.sourceForm(string(kind))
	req := workspace.IngestRequest{Kind: kind}
	if kind == backend.SourceDocument {
		file, header, err := r.FormFile("file")
		if err == nil {
			defer file.Close()
			req.File = file
			req.Filename = header.Filename
		}
	} else {
		req.URL = strings.TrimSpace(r.FormValue("url"))
		form.URL = req.URL
	}

	if err := h.workspace(r).Ingest(backendContext(r), req); err != nil {
		if errors.Is(err, workspace.ErrEmptySource) {
			form.Error = appI18n.T(r.Context(), "ErrorNoSource")
		} else {
			form.Error = backend.UserMessage(err)
		}
		h.renderSourceError(w, r, http.StatusUnprocessableEntity, form)
		return
	}
	h.redirect(w, r, "/")
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(r)
	if _, err := ws.Send(backendContext(r), r.FormValue("query")); err != nil {
		h.redirect(w, r, "/")
		return
	}
	h.respondPanel(w, r, ws, views.TabChat)
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(r)
	if ws.SessionID() == "" {
		h.redirect(w, r, "/")
		return
	}
	ws.RegenerateSummary(backendContext(r))
	h.respondPanel(w, r, ws, views.TabSummary)
}

func (h *Handler) handleGenerateQuiz(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(r)
	if ws.SessionID() == "" {
		h.redirect(w, r, "/")
		return
	}
	ws.GenerateQuiz(backendContext(r))
	h.respondPanel(w, r, ws, views.TabQuiz)
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(r)
	if ws.SessionID() == "" {
		h.redirect(w, r, "/")
		return
	}

	option, err := strconv.Atoi(r.FormValue("option"))
	if err != nil {
		http.Error(w, "invalid option", http.StatusBadRequest)
		return
	}
	index := ws.View().Quiz.CurrentIndex
	if s := r.FormValue("index"); s != "" {
		if index, err = strconv.Atoi(s); err != nil {
			http.Error(w, "invalid question index", http.StatusBadRequest)
			return
		}
	}

	err = ws.AnswerOption(index, option)
	switch {
	case err == nil:
	case errors.Is(err, workspace.ErrStaleAnswer), errors.Is(err, quiz.ErrInvalidState):
		// Double submit or an answer after completion: show the current state.
		slog.Debug("answer ignored", "session_id", ws.SessionID(), "error", err)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.respondPanel(w, r, ws, views.TabQuiz)
}

func (h *Handler) handleResetQuiz(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(r)
	ws.ResetQuiz()
	h.respondPanel(w, r, ws, views.TabQuiz)
}

func (h *Handler) handleEndSession(w http.ResponseWriter, r *http.Request) {
	h.workspace(r).End()
	h.redirect(w, r, "/")
}

// respondPanel renders the tab's partial for htmx and redirects to the tab
// otherwise.
func (h *Handler) respondPanel(w http.ResponseWriter, r *http.Request, ws *workspace.Workspace, tab string) {
	if !isHTMX(r) {
		h.redirect(w, r, "/?tab="+tab)
		return
	}
	render(w, r, http.StatusOK, views.Panel(tab, ws.View()))
}
