package constellationapi

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static/dashboard.html static/dashboard.css static/dashboard.js
var staticFS embed.FS

// staticAssets serves everything under static/ at /static/*, matching
// spec.md §6's "GET /static/* → static files".
var staticAssets = mustSub(staticFS, "static")

func mustSub(f embed.FS, dir string) fs.FS {
	sub, err := fs.Sub(f, dir)
	if err != nil {
		panic(err)
	}
	return sub
}

// handleDashboardHTML serves the dashboard's entry page at GET /.
func (h *Handler) handleDashboardHTML(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data, err := staticFS.ReadFile("static/dashboard.html")
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "dashboard asset missing", "INTERNAL")
		return
	}
	_, _ = w.Write(data)
}
