package handler

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/stats-tracker/internal/domain"
)

//go:embed templates/dashboard.html
var templateFiles embed.FS

var dashboardTemplate = template.Must(
	template.New("dashboard.html").
		Funcs(template.FuncMap{"comma": comma}).
		ParseFS(templateFiles, "templates/dashboard.html"),
)

var printer = message.NewPrinter(language.English)

// comma formats n with thousands separators
func comma(n int64) string {
	return printer.Sprintf("%d", n)
}

type dashboardView struct {
	*domain.Dashboard
	FeedSize int
}

// Dashboard renders the HTML dashboard
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := h.service.Dashboard(r.Context())
	if err != nil {
		h.writeServiceError(w, "failed to build dashboard", err)
		return
	}

	// Render into a buffer so a template error still yields a clean 500
	var buf bytes.Buffer
	view := dashboardView{Dashboard: dashboard, FeedSize: h.feedSize}
	if err := dashboardTemplate.Execute(&buf, view); err != nil {
		h.logger.Error("failed to render dashboard", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
