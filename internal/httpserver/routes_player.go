// internal/httpserver/routes_player.go
//
// Player data and catalog routes.
//   - GET  /suggest?q=   → up to five matching bird names
//   - GET  /licenses     → license picker values
//   - GET  /history      → caller's completed puzzles, newest first
//   - GET  /stats        → caller's totals and streaks
//   - POST /upload       → photo submission, rate limited per IP

package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/birdle/internal/birdnet"
	"github.com/robalobadob/birdle/internal/history"
	"github.com/robalobadob/birdle/internal/subject"
	"github.com/robalobadob/birdle/internal/suggest"
)

// multipart overhead allowed on top of the image limit
const formSlack = 1 << 20

// mountPlayer registers history, stats and upload routes.
func (s *Server) mountPlayer(r chi.Router) {
	r.Get("/history", s.handleHistory)
	r.Get("/stats", s.handleStats)
	r.With(s.uploadLimit()).Post("/upload", s.handleUpload)
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{
		"suggestions": s.Catalog.Top(r.URL.Query().Get("q"), suggest.DisplayLimit),
	})
}

func (s *Server) handleLicenses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]subject.License{"licenses": subject.Licenses})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	recs, err := s.History.All(r.Context(), s.owner(w, r))
	if err != nil {
		log.Error().Err(err).Msg("load history")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]history.Record{"history": recs})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	recs, err := s.History.All(r.Context(), s.owner(w, r))
	if err != nil {
		log.Error().Err(err).Msg("load history")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, history.Summarize(recs))
}

// uploadLimit allows UploadRatePerMin submissions per IP per minute.
func (s *Server) uploadLimit() func(http.Handler) http.Handler {
	return httprate.Limit(
		s.cfg.UploadRatePerMin,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate_limit_exceeded")
		}),
	)
}

// handleUpload validates a multipart submission and forwards it upstream.
// Fields: name, photographer_name, license, photographer_link, bird_link
// and the photo as file field "image".
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.UploadMaxBytes
	r.Body = http.MaxBytesReader(w, r.Body, int64(limit)+formSlack)
	if err := r.ParseMultipartForm(int64(limit)); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "invalid_submission", Field: "image", Reason: "too large"})
			return
		}
		writeError(w, http.StatusBadRequest, "bad_form")
		return
	}

	var photo []byte
	if f, _, err := r.FormFile("image"); err == nil {
		photo, err = io.ReadAll(io.LimitReader(f, int64(limit)+1))
		_ = f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_form")
			return
		}
	}

	sub := birdnet.Submission{
		Name:             strings.TrimSpace(r.FormValue("name")),
		Photographer:     strings.TrimSpace(r.FormValue("photographer_name")),
		License:          r.FormValue("license"),
		PhotographerLink: strings.TrimSpace(r.FormValue("photographer_link")),
		SubjectLink:      strings.TrimSpace(r.FormValue("bird_link")),
		Image:            photo,
	}
	err := sub.Validate(limit)
	if err == nil {
		err = s.Uploader.Upload(r.Context(), sub)
	}
	if err != nil {
		if ve, ok := isValidation(err); ok {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_submission", Field: ve.Field, Reason: ve.Reason})
			return
		}
		writeUpstreamError(w, r, err)
		return
	}
	log.Info().Str("name", sub.Name).Str("license", sub.License).Int("bytes", len(photo)).Msg("submission forwarded")
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(v)
}
