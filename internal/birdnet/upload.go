package birdnet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"mime/multipart"
	"net/textproto"
	"net/http"
	"net/url"
	"strings"

	"github.com/robalobadob/birdle/internal/subject"
)

// DefaultMaxUploadBytes caps submitted photos.
const DefaultMaxUploadBytes = 5 << 20

// jpegQuality matches the compression used by the mobile client.
const jpegQuality = 80

// Submission is a candidate subject for future puzzles.
type Submission struct {
	Name             string
	Photographer     string
	License          string
	PhotographerLink string
	SubjectLink      string
	Image            []byte
}

// ValidationError names the first invalid field of a Submission.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Reason }

// Validate checks every field is present and well formed. maxBytes <= 0
// means DefaultMaxUploadBytes.
func (s Submission) Validate(maxBytes int) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	required := []struct{ field, value string }{
		{"name", s.Name},
		{"photographer_name", s.Photographer},
		{"license", s.License},
		{"photographer_link", s.PhotographerLink},
		{"bird_link", s.SubjectLink},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &ValidationError{Field: r.field, Reason: "required"}
		}
	}
	if _, err := subject.ParseLicense(s.License); err != nil {
		return &ValidationError{Field: "license", Reason: "unknown license"}
	}
	for _, l := range []struct{ field, value string }{
		{"photographer_link", s.PhotographerLink},
		{"bird_link", s.SubjectLink},
	} {
		u, err := url.Parse(strings.TrimSpace(l.value))
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return &ValidationError{Field: l.field, Reason: "must be an http(s) link"}
		}
	}
	if len(s.Image) == 0 {
		return &ValidationError{Field: "image", Reason: "required"}
	}
	if len(s.Image) > maxBytes {
		return &ValidationError{Field: "image", Reason: fmt.Sprintf("larger than %d bytes", maxBytes)}
	}
	return nil
}

// toJPEG re-encodes any supported image as JPEG.
func toJPEG(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Upload sends s to the upstream moderation queue. The caller validates s
// first. Success requires a {"result":"success"} reply.
func (c *Client) Upload(ctx context.Context, s Submission) error {
	const op = "upload"
	target := c.endpoint(url.Values{"action": {"upload"}})
	if target == "" {
		return c.fail(op, KindInvalidURL, fmt.Errorf("bad base url %q", c.base))
	}
	lic, err := subject.ParseLicense(s.License)
	if err != nil {
		return &ValidationError{Field: "license", Reason: "unknown license"}
	}
	photo, err := toJPEG(s.Image)
	if err != nil {
		return c.fail(op, KindInvalidImage, err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := []struct{ name, value string }{
		{"name", strings.TrimSpace(s.Name)},
		{"photographer_name", strings.TrimSpace(s.Photographer)},
		{"license", string(lic)},
		{"photographer_link", strings.TrimSpace(s.PhotographerLink)},
		{"bird_link", strings.TrimSpace(s.SubjectLink)},
	}
	for _, f := range fields {
		if err := mw.WriteField(f.name, f.value); err != nil {
			return err
		}
	}
	part, err := mw.CreatePart(imagePartHeader())
	if err != nil {
		return err
	}
	if _, err := part.Write(photo); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, &body)
	if err != nil {
		return c.fail(op, KindInvalidURL, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	reply, err := c.do(op, req, maxJSONBytes, KindDecode)
	if err != nil {
		return err
	}
	var res resultResponse
	if err := json.Unmarshal(reply, &res); err != nil || res.Result != resultSuccess {
		if err == nil {
			err = errors.New("upstream did not report success")
		}
		return c.fail(op, KindServer, err)
	}
	return nil
}

func imagePartHeader() textproto.MIMEHeader {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="bird.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	return h
}
