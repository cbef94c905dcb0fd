// internal/httpserver/routes_play.go
//
// Puzzle session routes.
//   - POST   /daily/new            → create today's session (or report it was played)
//   - POST   /practice/{id}/new    → create a practice session (ids 1..5)
//   - POST   /sessions/{id}/start  → begin play (daily lock applies)
//   - POST   /sessions/{id}/guess  → submit a guess
//   - GET    /sessions/{id}        → current state
//   - DELETE /sessions/{id}        → abandon
//   - GET    /sessions/{id}/frame  → image for the displayed frame
//   - GET    /sessions/{id}/summary → share text once completed
//
// Sessions live in memory and are private to the player that created them.

package httpserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/robalobadob/birdle/internal/game"
	"github.com/robalobadob/birdle/internal/reveal"
	"github.com/robalobadob/birdle/internal/session"
	"github.com/robalobadob/birdle/internal/subject"
	"github.com/robalobadob/birdle/internal/summary"
)

// mountPlay registers daily, practice and session routes.
func (s *Server) mountPlay(r chi.Router) {
	r.Post("/daily/new", s.handleNewDaily)
	r.Post("/practice/{id}/new", s.handleNewPractice)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", s.handleGetSession)
		r.Delete("/", s.handleAbandon)
		r.Post("/start", s.handleStart)
		r.Post("/guess", s.handleGuess)
		r.Get("/frame", s.handleFrame)
		r.Get("/summary", s.handleSummary)
	})
}

// newDailyRes is returned by /daily/new.
type newDailyRes struct {
	SessionID string `json:"sessionId"`
	Date      string `json:"date"`
	Played    bool   `json:"played"`
}

// handleNewDaily creates a daily session unless the caller already played today.
func (s *Server) handleNewDaily(w http.ResponseWriter, r *http.Request) {
	owner := s.owner(w, r)
	date := s.Factory.DailyKey()

	if !s.Factory.DailyGate(owner).MayStart(r.Context()) {
		writeJSON(w, http.StatusOK, newDailyRes{Date: date, Played: true})
		return
	}
	c, err := s.Factory.NewDaily(r.Context(), owner)
	if err != nil {
		writeUpstreamError(w, r, err)
		return
	}
	if !s.register(w, r, owner, c) {
		return
	}
	writeJSON(w, http.StatusOK, newDailyRes{SessionID: c.ID(), Date: c.Snapshot().PuzzleID})
}

// newPracticeRes is returned by /practice/{id}/new.
type newPracticeRes struct {
	SessionID string `json:"sessionId"`
	PuzzleID  string `json:"puzzleId"`
}

// handleNewPractice creates a session for a practice puzzle. Replays are allowed.
func (s *Server) handleNewPractice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_puzzle_id")
		return
	}
	owner := s.owner(w, r)
	c, err := s.Factory.NewPractice(r.Context(), owner, id)
	switch {
	case errors.Is(err, session.ErrUnknownPuzzle):
		writeError(w, http.StatusNotFound, "unknown_puzzle")
		return
	case err != nil:
		writeUpstreamError(w, r, err)
		return
	}
	if !s.register(w, r, owner, c) {
		return
	}
	writeJSON(w, http.StatusOK, newPracticeRes{SessionID: c.ID(), PuzzleID: c.Snapshot().PuzzleID})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request, owner string, c *game.Controller) bool {
	if err := s.Sessions.Save(r.Context(), owner, c); err != nil {
		c.Abandon()
		writeError(w, http.StatusInternalServerError, "save_failed")
		return false
	}
	return true
}

// session loads the caller's session from the URL or answers 404.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*game.Controller, bool) {
	c, err := s.Sessions.Get(r.Context(), s.owner(w, r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found")
		return nil, false
	}
	return c, true
}

// sessionView is the session state sent to clients. The subject is only
// revealed once the session has completed.
type sessionView struct {
	game.Snapshot
	Subject       *subject.Subject `json:"subject,omitempty"`
	FinalImageURL string           `json:"finalImageUrl,omitempty"`
}

func viewOf(c *game.Controller) sessionView {
	v := sessionView{Snapshot: c.Snapshot()}
	if v.Phase == game.PhaseCompleted {
		subj := c.Subject()
		v.Subject = &subj
		v.FinalImageURL = subj.FinalImageURL()
	}
	return v
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	c, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(c))
}

func (s *Server) handleAbandon(w http.ResponseWriter, r *http.Request) {
	if err := s.Sessions.Delete(r.Context(), s.owner(w, r), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStart begins play. A locked daily puzzle answers 409 already_solved.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	c, ok := s.session(w, r)
	if !ok {
		return
	}
	switch err := c.Start(r.Context()); {
	case errors.Is(err, game.ErrAlreadySolved):
		writeError(w, http.StatusConflict, "already_solved")
		return
	case errors.Is(err, game.ErrInvalidOperation):
		writeError(w, http.StatusConflict, "invalid_operation")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	writeJSON(w, http.StatusOK, viewOf(c))
}

type guessReq struct {
	Guess string `json:"guess"`
}

type guessRes struct {
	Correct bool        `json:"correct"`
	Session sessionView `json:"session"`
}

// handleGuess applies a guess. Blank guesses and guesses outside play are 409.
func (s *Server) handleGuess(w http.ResponseWriter, r *http.Request) {
	c, ok := s.session(w, r)
	if !ok {
		return
	}
	var req guessReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json")
		return
	}
	correct, err := c.SubmitGuess(req.Guess)
	if err != nil {
		writeError(w, http.StatusConflict, "invalid_operation")
		return
	}
	writeJSON(w, http.StatusOK, guessRes{Correct: correct, Session: viewOf(c)})
}

// handleFrame serves the displayed frame. Frames still loading or failed
// answer 204 with X-Frame-State so the client can draw its placeholder.
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	c, ok := s.session(w, r)
	if !ok {
		return
	}
	snap := c.Snapshot()
	if snap.Frame == game.NoFrame {
		writeError(w, http.StatusConflict, "invalid_operation")
		return
	}
	f, err := c.Frames().Frame(snap.Frame)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	w.Header().Set("X-Frame-Index", strconv.Itoa(f.Index))
	w.Header().Set("X-Frame-State", string(f.State))
	if f.State != reveal.Loaded {
		w.Header().Del("Content-Type")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", f.Payload.ContentType)
	w.Header().Set("Cache-Control", "private, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(f.Payload.Data)
}

type summaryRes struct {
	Text   string            `json:"text"`
	Result game.PuzzleResult `json:"result"`
}

// handleSummary returns the share text. Not available before completion.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	c, ok := s.session(w, r)
	if !ok {
		return
	}
	res, ok := c.Result()
	if !ok {
		writeError(w, http.StatusConflict, "invalid_operation")
		return
	}
	writeJSON(w, http.StatusOK, summaryRes{Text: summary.Format(res), Result: res})
}
