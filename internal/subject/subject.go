// internal/subject/subject.go
//
// Subject metadata for one Birdle puzzle.
// Responsibilities:
//   - Decode the upstream puzzle JSON (name, image code, attribution).
//   - Derive the six ordered frame URLs from the 4-digit image code.
//   - Parse and validate image license labels.
//
// Frame 5 is always the full reveal.

package subject

import (
	"errors"
	"fmt"
	"strings"
)

// FrameCount is the number of images per subject (indices 0..5).
const FrameCount = 6

// DefaultImageBase is where the upstream service hosts puzzle frames.
const DefaultImageBase = "https://easterbilby.net/birdle/"

// License is one of the image licenses a photographer may choose.
type License string

const (
	LicensePublicDomain License = "Public Domain"
	LicenseCCBY         License = "CC BY"
	LicenseCCBYSA       License = "CC BY-SA"
	LicenseCCBYNC       License = "CC BY-NC"
	LicenseCCBYNCSA     License = "CC BY-NC-SA"
	LicenseCCBYNCND     License = "CC BY-NC-ND"
)

// Licenses lists every accepted license in picker order.
var Licenses = []License{
	LicensePublicDomain,
	LicenseCCBY,
	LicenseCCBYSA,
	LicenseCCBYNC,
	LicenseCCBYNCSA,
	LicenseCCBYNCND,
}

// ErrUnknownLicense is returned by ParseLicense for unrecognised labels.
var ErrUnknownLicense = errors.New("unknown license")

// ParseLicense accepts the display labels ("CC BY-SA") as well as the
// fully hyphenated tags ("CC-BY-SA"), case-insensitively.
func ParseLicense(s string) (License, error) {
	key := licenseKey(s)
	for _, l := range Licenses {
		if licenseKey(string(l)) == key {
			return l, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLicense, s)
}

func licenseKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", " ")
	s = strings.ReplaceAll(s, "_", " ")
	return strings.Join(strings.Fields(s), " ")
}

// Subject is the immutable puzzle target fetched per puzzle id.
type Subject struct {
	Name            string `json:"name"`
	ImageCode       string `json:"image"` // 4-digit code like "0008"
	Photographer    string `json:"photographer"`
	License         string `json:"license"`
	PhotographerURL string `json:"photographer_url"`
	SubjectURL      string `json:"bird_url"`

	// ImageBase overrides DefaultImageBase; not part of the wire format.
	ImageBase string `json:"-"`
}

// Validate reports whether the subject can back a puzzle.
func (s Subject) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("subject: empty name")
	}
	if strings.TrimSpace(s.ImageCode) == "" {
		return errors.New("subject: empty image code")
	}
	return nil
}

// ImageURLs returns the FrameCount frame URLs in reveal order.
func (s Subject) ImageURLs() []string {
	out := make([]string, FrameCount)
	for i := range out {
		out[i] = s.ImageURL(i)
	}
	return out
}

// ImageURL returns the URL of frame i.
func (s Subject) ImageURL(i int) string {
	base := s.ImageBase
	if base == "" {
		base = DefaultImageBase
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return fmt.Sprintf("%s%s%d.jpg", base, s.ImageCode, i)
}

// FinalImageURL is the full-reveal frame.
func (s Subject) FinalImageURL() string { return s.ImageURL(FrameCount - 1) }
