package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/birdle/internal/birdnet"
	"github.com/robalobadob/birdle/internal/config"
	"github.com/robalobadob/birdle/internal/database"
	"github.com/robalobadob/birdle/internal/history"
	"github.com/robalobadob/birdle/internal/session"
	"github.com/robalobadob/birdle/internal/store"
	"github.com/robalobadob/birdle/internal/subject"
	"github.com/robalobadob/birdle/internal/suggest"
)

var frogmouth = subject.Subject{
	Name:            "Tawny Frogmouth",
	ImageCode:       "0008",
	Photographer:    "Jane Doe",
	License:         "CC BY",
	PhotographerURL: "https://example.org/jane",
	SubjectURL:      "https://en.wikipedia.org/wiki/Tawny_frogmouth",
}

type fakeUpstream struct {
	err       error
	imagesErr error
}

func (u *fakeUpstream) FetchDaily(ctx context.Context) (subject.Subject, error) {
	return frogmouth, u.err
}

func (u *fakeUpstream) FetchPuzzle(ctx context.Context, id int) (subject.Subject, error) {
	return frogmouth, u.err
}

func (u *fakeUpstream) FetchImage(ctx context.Context, url string) (birdnet.Image, error) {
	if u.imagesErr != nil {
		return birdnet.Image{}, u.imagesErr
	}
	return birdnet.Image{Data: []byte("jpeg:" + url), ContentType: "image/jpeg"}, nil
}

type fakeUploader struct {
	mu   sync.Mutex
	got  []birdnet.Submission
	fail error
}

func (f *fakeUploader) Upload(ctx context.Context, s birdnet.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, s)
	return f.fail
}

type env struct {
	srv      *httptest.Server
	upstream *fakeUpstream
	uploads  *fakeUploader
	factory  *session.Factory
	history  history.Store
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := database.OpenMigrated(":memory:")
	require.NoError(t, err)

	cfg := &config.Config{
		JWTSecret:        "test-secret",
		JWTExpiresDays:   1,
		CookieName:       "birdle_token",
		AnonCookieName:   "birdle_anon",
		ClientOrigin:     "http://localhost:5173",
		UploadMaxBytes:   1 << 16,
		UploadRatePerMin: 2,
		Location:         time.UTC,
	}
	e := &env{
		upstream: &fakeUpstream{},
		uploads:  &fakeUploader{},
		history:  history.NewSQLStore(db),
	}
	e.factory = &session.Factory{Upstream: e.upstream, History: e.history, Location: time.UTC}
	sessions := store.NewMemoryStore(time.Hour, nil)

	s := New(cfg, Deps{
		DB:       db,
		Sessions: sessions,
		Factory:  e.factory,
		History:  e.history,
		Catalog:  suggest.NewCatalog([]string{"Tawny Frogmouth", "Australian Magpie", "Australian White Ibis"}),
		Uploader: e.uploads,
	})
	e.srv = httptest.NewServer(s.Router())
	t.Cleanup(func() {
		e.srv.Close()
		sessions.Close()
		e.factory.Wait()
		_ = db.Close()
	})
	return e
}

// player is an HTTP client with its own cookie jar.
type player struct {
	t    *testing.T
	base string
	hc   *http.Client
}

func (e *env) player(t *testing.T) *player {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &player{t: t, base: e.srv.URL, hc: &http.Client{Jar: jar}}
}

func (p *player) do(method, path string, body any) (int, []byte) {
	p.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(p.t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, p.base+path, rd)
	require.NoError(p.t, err)
	res, err := p.hc.Do(req)
	require.NoError(p.t, err)
	defer res.Body.Close()
	out, err := io.ReadAll(res.Body)
	require.NoError(p.t, err)
	return res.StatusCode, out
}

func (p *player) json(method, path string, body any, want int) map[string]any {
	p.t.Helper()
	code, raw := p.do(method, path, body)
	require.Equal(p.t, want, code, string(raw))
	out := map[string]any{}
	if len(raw) > 0 {
		require.NoError(p.t, json.Unmarshal(raw, &out), string(raw))
	}
	return out
}

func TestHealth(t *testing.T) {
	e := newEnv(t)
	p := e.player(t)
	assert.Equal(t, true, p.json(http.MethodGet, "/health", nil, http.StatusOK)["ok"])

	code, raw := p.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(raw), "birdle_")
}

func TestDailyFlow(t *testing.T) {
	e := newEnv(t)
	p := e.player(t)

	created := p.json(http.MethodPost, "/daily/new", nil, http.StatusOK)
	id, _ := created["sessionId"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, false, created["played"])
	assert.Equal(t, time.Now().UTC().Format("2006-01-02"), created["date"])

	// Guessing before start is rejected.
	bad := p.json(http.MethodPost, "/sessions/"+id+"/guess", map[string]string{"guess": "Emu"}, http.StatusConflict)
	assert.Equal(t, "invalid_operation", bad["error"])

	started := p.json(http.MethodPost, "/sessions/"+id+"/start", nil, http.StatusOK)
	assert.Equal(t, "in_progress", started["phase"])
	assert.EqualValues(t, 0, started["frame"])
	assert.Nil(t, started["subject"], "subject stays hidden during play")

	wrong := p.json(http.MethodPost, "/sessions/"+id+"/guess", map[string]string{"guess": "Emu"}, http.StatusOK)
	assert.Equal(t, false, wrong["correct"])
	sess := wrong["session"].(map[string]any)
	assert.EqualValues(t, 2, sess["attempt"])
	assert.EqualValues(t, 1, sess["frame"])

	blank := p.json(http.MethodPost, "/sessions/"+id+"/guess", map[string]string{"guess": "   "}, http.StatusConflict)
	assert.Equal(t, "invalid_operation", blank["error"])

	p.json(http.MethodGet, "/sessions/"+id+"/summary", nil, http.StatusConflict)

	right := p.json(http.MethodPost, "/sessions/"+id+"/guess", map[string]string{"guess": " tawny frogmouth "}, http.StatusOK)
	assert.Equal(t, true, right["correct"])
	sess = right["session"].(map[string]any)
	assert.Equal(t, "completed", sess["phase"])
	assert.Equal(t, "success", sess["outcome"])
	assert.EqualValues(t, 5, sess["frame"])
	assert.Equal(t, "https://easterbilby.net/birdle/00085.jpg", sess["finalImageUrl"])
	require.NotNil(t, sess["subject"])

	sum := p.json(http.MethodGet, "/sessions/"+id+"/summary", nil, http.StatusOK)
	text, _ := sum["text"].(string)
	assert.True(t, strings.HasPrefix(text, "Birdle "), text)
	assert.Contains(t, text, "You got it!\nAttempts: 2/5\nBird: Tawny Frogmouth\n")

	hist := p.json(http.MethodGet, "/history", nil, http.StatusOK)
	recs := hist["history"].([]any)
	require.Len(t, recs, 1)
	assert.Equal(t, "daily", recs[0].(map[string]any)["mode"])

	stats := p.json(http.MethodGet, "/stats", nil, http.StatusOK)
	assert.EqualValues(t, 1, stats["played"])
	assert.EqualValues(t, 1, stats["wins"])
	assert.EqualValues(t, 1, stats["currentStreak"])

	// Today's puzzle is now locked for this player only.
	again := p.json(http.MethodPost, "/daily/new", nil, http.StatusOK)
	assert.Equal(t, true, again["played"])
	assert.Empty(t, again["sessionId"])

	other := e.player(t)
	assert.Equal(t, false, other.json(http.MethodPost, "/daily/new", nil, http.StatusOK)["played"])
}

func TestDailyLockedAtStart(t *testing.T) {
	e := newEnv(t)
	p := e.player(t)

	first := p.json(http.MethodPost, "/daily/new", nil, http.StatusOK)["sessionId"].(string)
	second := p.json(http.MethodPost, "/daily/new", nil, http.StatusOK)["sessionId"].(string)

	p.json(http.MethodPost, "/sessions/"+first+"/start", nil, http.StatusOK)
	for i := 0; i < 5; i++ {
		p.json(http.MethodPost, "/sessions/"+first+"/guess", map[string]string{"guess": "Emu"}, http.StatusOK)
	}
	done := p.json(http.MethodGet, "/sessions/"+first, nil, http.StatusOK)
	assert.Equal(t, "failure", done["outcome"])
	assert.EqualValues(t, 5, done["attempt"])

	sum := p.json(http.MethodGet, "/sessions/"+first+"/summary", nil, http.StatusOK)
	assert.Contains(t, sum["text"], "Nope, try again!\nAttempts: X/5\n")

	locked := p.json(http.MethodPost, "/sessions/"+second+"/start", nil, http.StatusConflict)
	assert.Equal(t, "already_solved", locked["error"])
	view := p.json(http.MethodGet, "/sessions/"+second, nil, http.StatusOK)
	assert.Equal(t, true, view["alreadySolved"])
	assert.Equal(t, "not_started", view["phase"])
}

func TestOneDailyInPlay(t *testing.T) {
	e := newEnv(t)
	p := e.player(t)

	first := p.json(http.MethodPost, "/daily/new", nil, http.StatusOK)["sessionId"].(string)
	second := p.json(http.MethodPost, "/daily/new", nil, http.StatusOK)["sessionId"].(string)

	p.json(http.MethodPost, "/sessions/"+first+"/start", nil, http.StatusOK)
	locked := p.json(http.MethodPost, "/sessions/"+second+"/start", nil, http.StatusConflict)
	assert.Equal(t, "already_solved", locked["error"])

	code, _ := p.do(http.MethodDelete, "/sessions/"+first, nil)
	require.Equal(t, http.StatusNoContent, code)
	p.json(http.MethodPost, "/sessions/"+second+"/start", nil, http.StatusOK)
}

func TestPractice(t *testing.T) {
	e := newEnv(t)
	p := e.player(t)

	for i := 0; i < 2; i++ {
		res := p.json(http.MethodPost, "/practice/3/new", nil, http.StatusOK)
		assert.Equal(t, "practice-3", res["puzzleId"])
		id := res["sessionId"].(string)
		p.json(http.MethodPost, "/sessions/"+id+"/start", nil, http.StatusOK)
		p.json(http.MethodPost, "/sessions/"+id+"/guess", map[string]string{"guess": "Tawny Frogmouth"}, http.StatusOK)
	}
	hist := p.json(http.MethodGet, "/history", nil, http.StatusOK)
	assert.Len(t, hist["history"], 2)

	stats := p.json(http.MethodGet, "/stats", nil, http.StatusOK)
	assert.EqualValues(t, 2, stats["wins"])
	assert.EqualValues(t, 0, stats["currentStreak"], "practice does not build streaks")

	// Practice never locks the daily puzzle.
	assert.Equal(t, false, p.json(http.MethodPost, "/daily/new", nil, http.StatusOK)["played"])

	assert.Equal(t, "unknown_puzzle", p.json(http.MethodPost, "/practice/9/new", nil, http.StatusNotFound)["error"])
	assert.Equal(t, "bad_puzzle_id", p.json(http.MethodPost, "/practice/abc/new", nil, http.StatusBadRequest)["error"])
}

func TestUpstreamFailure(t *testing.T) {
	e := newEnv(t)
	e.upstream.err = birdnet.ErrNoData
	p := e.player(t)

	res := p.json(http.MethodPost, "/daily/new", nil, http.StatusBadGateway)
	assert.Equal(t, "no_data", res["error"])
	assert.Equal(t, true, res["retryable"])

	e.upstream.err = errors.New("unclassified")
	res = p.json(http.MethodPost, "/practice/1/new", nil, http.StatusInternalServerError)
	assert.Equal(t, "internal", res["error"])
}

func TestFrame(t *testing.T) {
	e := newEnv(t)
	p := e.player(t)
	id := p.json(http.MethodPost, "/practice/1/new", nil, http.StatusOK)["sessionId"].(string)
	e.factory.Wait()

	p.json(http.MethodGet, "/sessions/"+id+"/frame", nil, http.StatusConflict)
	p.json(http.MethodPost, "/sessions/"+id+"/start", nil, http.StatusOK)

	req, err := http.NewRequest(http.MethodGet, e.srv.URL+"/sessions/"+id+"/frame", nil)
	require.NoError(t, err)
	res, err := p.hc.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "image/jpeg", res.Header.Get("Content-Type"))
	assert.Equal(t, "0", res.Header.Get("X-Frame-Index"))
	assert.Equal(t, "jpeg:https://easterbilby.net/birdle/00080.jpg", string(body))
}

func TestFramePlaceholder(t *testing.T) {
	e := newEnv(t)
	e.upstream.imagesErr = birdnet.ErrInvalidImage
	p := e.player(t)
	id := p.json(http.MethodPost, "/practice/1/new", nil, http.StatusOK)["sessionId"].(string)
	e.factory.Wait()
	p.json(http.MethodPost, "/sessions/"+id+"/start", nil, http.StatusOK)

	req, err := http.NewRequest(http.MethodGet, e.srv.URL+"/sessions/"+id+"/frame", nil)
	require.NoError(t, err)
	res, err := p.hc.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.Equal(t, "load_failed", res.Header.Get("X-Frame-State"))

	// Play continues without images.
	ok := p.json(http.MethodPost, "/sessions/"+id+"/guess", map[string]string{"guess": "tawny frogmouth"}, http.StatusOK)
	assert.Equal(t, true, ok["correct"])
}

func TestSessionsArePrivate(t *testing.T) {
	e := newEnv(t)
	alice, bob := e.player(t), e.player(t)
	id := alice.json(http.MethodPost, "/practice/1/new", nil, http.StatusOK)["sessionId"].(string)

	bob.json(http.MethodGet, "/sessions/"+id, nil, http.StatusNotFound)
	bob.json(http.MethodDelete, "/sessions/"+id, nil, http.StatusNotFound)

	alice.json(http.MethodPost, "/sessions/"+id+"/start", nil, http.StatusOK)
	code, _ := alice.do(http.MethodDelete, "/sessions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, code)
	alice.json(http.MethodGet, "/sessions/"+id, nil, http.StatusNotFound)

	hist := alice.json(http.MethodGet, "/history", nil, http.StatusOK)
	assert.Empty(t, hist["history"], "abandoned sessions leave no history")
}

func TestSuggest(t *testing.T) {
	e := newEnv(t)
	p := e.player(t)
	res := p.json(http.MethodGet, "/suggest?q=aus", nil, http.StatusOK)
	assert.Equal(t, []any{"Australian Magpie", "Australian White Ibis"}, res["suggestions"])

	res = p.json(http.MethodGet, "/suggest", nil, http.StatusOK)
	assert.Equal(t, []any{}, res["suggestions"])

	lic := p.json(http.MethodGet, "/licenses", nil, http.StatusOK)
	assert.Len(t, lic["licenses"], len(subject.Licenses))
}

func uploadForm(t *testing.T, fields map[string]string, image []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if image != nil {
		part, err := mw.CreateFormFile("image", "photo.png")
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (p *player) upload(fields map[string]string, image []byte) (int, map[string]any) {
	p.t.Helper()
	body, ct := uploadForm(p.t, fields, image)
	res, err := p.hc.Post(p.base+"/upload", ct, body)
	require.NoError(p.t, err)
	defer res.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(res.Body).Decode(&out)
	return res.StatusCode, out
}

func TestUpload(t *testing.T) {
	e := newEnv(t)
	p := e.player(t)
	fields := map[string]string{
		"name":              "Australian Magpie",
		"photographer_name": "Jane Doe",
		"license":           "CC-BY-SA",
		"photographer_link": "https://example.org/jane",
		"bird_link":         "https://en.wikipedia.org/wiki/Australian_magpie",
	}

	code, res := p.upload(fields, []byte("fake image"))
	require.Equal(t, http.StatusOK, code, res)
	require.Len(t, e.uploads.got, 1)
	assert.Equal(t, "Australian Magpie", e.uploads.got[0].Name)
	assert.Equal(t, []byte("fake image"), e.uploads.got[0].Image)

	delete(fields, "bird_link")
	code, res = p.upload(fields, []byte("fake image"))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_submission", res["error"])
	assert.Equal(t, "bird_link", res["field"])
	assert.Len(t, e.uploads.got, 1)

	// Two per minute per IP.
	code, res = p.upload(fields, []byte("fake image"))
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "rate_limit_exceeded", res["error"])
}

func TestUploadUpstreamFailure(t *testing.T) {
	e := newEnv(t)
	e.uploads.fail = &birdnet.Error{Kind: birdnet.KindServer, Op: "upload"}
	p := e.player(t)
	code, res := p.upload(map[string]string{
		"name":              "Australian Magpie",
		"photographer_name": "Jane Doe",
		"license":           "Public Domain",
		"photographer_link": "https://example.org/jane",
		"bird_link":         "https://example.org/magpie",
	}, []byte("fake image"))
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, "server_error", res["error"])
}

func TestAuthClaimsGuestHistory(t *testing.T) {
	e := newEnv(t)
	p := e.player(t)

	id := p.json(http.MethodPost, "/daily/new", nil, http.StatusOK)["sessionId"].(string)
	p.json(http.MethodPost, "/sessions/"+id+"/start", nil, http.StatusOK)
	p.json(http.MethodPost, "/sessions/"+id+"/guess", map[string]string{"guess": "Tawny Frogmouth"}, http.StatusOK)

	p.json(http.MethodGet, "/auth/me", nil, http.StatusUnauthorized)
	user := p.json(http.MethodPost, "/auth/signup", map[string]string{"username": "birder_1", "password": "correct horse"}, http.StatusOK)
	assert.Equal(t, "birder_1", user["username"])

	me := p.json(http.MethodGet, "/auth/me", nil, http.StatusOK)
	assert.Equal(t, user["id"], me["id"])

	recs, err := e.history.All(context.Background(), user["id"].(string))
	require.NoError(t, err)
	assert.Len(t, recs, 1, "guest history moves to the new account")

	// Logged in, the daily lock follows the account.
	assert.Equal(t, true, p.json(http.MethodPost, "/daily/new", nil, http.StatusOK)["played"])

	p.json(http.MethodPost, "/auth/logout", nil, http.StatusOK)
	p.json(http.MethodGet, "/auth/me", nil, http.StatusUnauthorized)

	p.json(http.MethodPost, "/auth/signup", map[string]string{"username": "BIRDER_1", "password": "another pass"}, http.StatusConflict)
	p.json(http.MethodPost, "/auth/login", map[string]string{"username": "birder_1", "password": "wrong password"}, http.StatusUnauthorized)
	p.json(http.MethodPost, "/auth/login", map[string]string{"username": "birder_1", "password": "correct horse"}, http.StatusOK)
	assert.Len(t, p.json(http.MethodGet, "/history", nil, http.StatusOK)["history"], 1)
}

func TestLoginKeepsGuestSession(t *testing.T) {
	e := newEnv(t)
	p := e.player(t)

	id := p.json(http.MethodPost, "/practice/2/new", nil, http.StatusOK)["sessionId"].(string)
	p.json(http.MethodPost, "/sessions/"+id+"/start", nil, http.StatusOK)
	p.json(http.MethodPost, "/sessions/"+id+"/guess", map[string]string{"guess": "Emu"}, http.StatusOK)

	user := p.json(http.MethodPost, "/auth/signup", map[string]string{"username": "night_heron", "password": "correct horse"}, http.StatusOK)

	view := p.json(http.MethodGet, "/sessions/"+id, nil, http.StatusOK)
	assert.Equal(t, "in_progress", view["phase"])
	assert.EqualValues(t, 2, view["attempt"])

	p.json(http.MethodPost, "/sessions/"+id+"/guess", map[string]string{"guess": "Tawny Frogmouth"}, http.StatusOK)
	recs, err := e.history.All(context.Background(), user["id"].(string))
	require.NoError(t, err)
	require.Len(t, recs, 1, "result lands under the account")
	assert.True(t, recs[0].Success)
}
