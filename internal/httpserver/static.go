package httpserver

import (
	"embed"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

//go:embed assets/*
var embeddedAssets embed.FS

const overlayAsset = "index.html"

func (s *Server) staticHandler() http.Handler {
	assets, err := fs.Sub(embeddedAssets, "assets")
	if err != nil {
		panic(err)
	}
	files := http.FileServer(http.FS(assets))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !allowMethods(w, r, http.MethodGet, http.MethodHead) {
			return
		}

		name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
		switch name {
		// the overlay is also reachable by name for browser-source embeds
		case "", "overlay", overlayAsset:
			s.serveOverlay(w, r, assets)
			return
		}

		if _, err := fs.Stat(assets, name); err != nil {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}

func (s *Server) serveOverlay(w http.ResponseWriter, r *http.Request, assets fs.FS) {
	logger := s.loggerFromContext(r.Context())
	data, err := fs.ReadFile(assets, overlayAsset)
	if err != nil {
		logger.Error("failed to read overlay asset", "err", err)
		http.Error(w, "missing overlay asset", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	if _, err := w.Write(data); err != nil {
		logger.Warn("failed to write overlay response", "err", err)
	}
}
