package birdnet

import (
	"context"
	"image/jpeg"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/birdle/internal/subject"
)

func frogmouthSubject() subject.Subject {
	return subject.Subject{Name: "Tawny Frogmouth", ImageCode: "0008"}
}

func validSubmission(t *testing.T) Submission {
	return Submission{
		Name:             "Superb Fairywren",
		Photographer:     "Jane Doe",
		License:          "CC-BY-SA",
		PhotographerLink: "https://example.org/jane",
		SubjectLink:      "https://en.wikipedia.org/wiki/Superb_fairywren",
		Image:            pngBytes(t),
	}
}

func TestSubmissionValidate(t *testing.T) {
	require.NoError(t, validSubmission(t).Validate(0))

	tests := []struct {
		name  string
		edit  func(*Submission)
		field string
	}{
		{"no name", func(s *Submission) { s.Name = " " }, "name"},
		{"no photographer", func(s *Submission) { s.Photographer = "" }, "photographer_name"},
		{"bad license", func(s *Submission) { s.License = "mine" }, "license"},
		{"relative link", func(s *Submission) { s.PhotographerLink = "/jane" }, "photographer_link"},
		{"no bird link", func(s *Submission) { s.SubjectLink = "" }, "bird_link"},
		{"no image", func(s *Submission) { s.Image = nil }, "image"},
		{"too big", func(s *Submission) { s.Image = make([]byte, 11) }, "image"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSubmission(t)
			tt.edit(&s)
			err := s.Validate(10)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestUpload(t *testing.T) {
	var got map[string]string
	c := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "upload", r.URL.Query().Get("action"))
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		got = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			got[k] = v[0]
		}
		f, hdr, err := r.FormFile("image")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		assert.Equal(t, "bird.jpg", hdr.Filename)
		assert.Equal(t, "image/jpeg", hdr.Header.Get("Content-Type"))
		_, err = jpeg.DecodeConfig(f)
		assert.NoError(t, err, "photo is re-encoded as jpeg")
		_, _ = io.WriteString(w, `{"result":"success"}`)
	})

	require.NoError(t, c.Upload(context.Background(), validSubmission(t)))
	assert.Equal(t, "Superb Fairywren", got["name"])
	assert.Equal(t, "Jane Doe", got["photographer_name"])
	assert.Equal(t, "CC BY-SA", got["license"])
	assert.Equal(t, "https://example.org/jane", got["photographer_link"])
	assert.True(t, strings.HasSuffix(got["bird_link"], "Superb_fairywren"))
}

func TestUploadFailures(t *testing.T) {
	c := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"result":"error"}`)
	})
	assert.ErrorIs(t, c.Upload(context.Background(), validSubmission(t)), ErrServer)

	s := validSubmission(t)
	s.Image = []byte("definitely not an image")
	assert.ErrorIs(t, c.Upload(context.Background(), s), ErrInvalidImage)
}
