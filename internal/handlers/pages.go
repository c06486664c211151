package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/a-h/templ"

	"sales-dashboard/internal/errors"
	"sales-dashboard/internal/observability"
	"sales-dashboard/internal/services"
	"sales-dashboard/internal/ui/templates"
)

const renderTimeout = 10 * time.Second

type PageHandlers struct {
	analytics      *services.Analytics
	rules          RulesSource
	logger         *slog.Logger
	defaultProfile string
}

func NewPageHandlers(analytics *services.Analytics, src RulesSource, logger *slog.Logger, defaultProfile string) *PageHandlers {
	return &PageHandlers{
		analytics:      analytics,
		rules:          src,
		logger:         logger,
		defaultProfile: defaultProfile,
	}
}

func (h *PageHandlers) HandleHome(w http.ResponseWriter, r *http.Request) {
	current := h.rules.Rules()
	profiles := make([]templates.Profile, 0, len(current.Profiles))
	for _, p := range current.Profiles {
		profiles = append(profiles, templates.Profile{Name: p.Name, Title: p.Title, Default: p.Name == h.defaultProfile})
	}

	h.render(w, r, templates.Home(profiles))
}

// HandleDashboard renders the page shell for a dataset with every selector
// on its default.
func (h *PageHandlers) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	report, err := h.analytics.Build(r.Context(), r.PathValue("id"), nil)
	if err != nil {
		errors.WriteError(w, h.logger, err, observability.GetRequestID(r.Context()))
		return
	}

	h.render(w, r, templates.Dashboard(report))
}

func (h *PageHandlers) render(w http.ResponseWriter, r *http.Request, c templ.Component) {
	ctx, cancel := context.WithTimeout(r.Context(), renderTimeout)
	defer cancel()

	templ.Handler(c, templ.WithErrorHandler(func(r *http.Request, err error) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h.logger.Error("render page", "error", err, "path", r.URL.Path)
			http.Error(w, "render error", http.StatusInternalServerError)
		})
	})).ServeHTTP(w, r.WithContext(ctx))
}
