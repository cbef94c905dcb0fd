package subject

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageURLs(t *testing.T) {
	s := Subject{Name: "Tawny Frogmouth", ImageCode: "0008"}
	urls := s.ImageURLs()
	require.Len(t, urls, FrameCount)
	assert.Equal(t, "https://easterbilby.net/birdle/00080.jpg", urls[0])
	assert.Equal(t, "https://easterbilby.net/birdle/00085.jpg", urls[5])
	assert.Equal(t, urls[5], s.FinalImageURL())
}

func TestImageURLCustomBase(t *testing.T) {
	s := Subject{ImageCode: "0001", ImageBase: "http://cdn.local/img"}
	assert.Equal(t, "http://cdn.local/img/00013.jpg", s.ImageURL(3))
}

func TestDecodeUpstreamJSON(t *testing.T) {
	body := `{"name":"Australian Magpie","image":"0003","photographer":"Jane",
		"license":"CC BY","photographer_url":"https://p.example","bird_url":"https://w.example"}`
	var s Subject
	require.NoError(t, json.Unmarshal([]byte(body), &s))
	assert.Equal(t, "Australian Magpie", s.Name)
	assert.Equal(t, "0003", s.ImageCode)
	assert.Equal(t, "https://p.example", s.PhotographerURL)
	assert.Equal(t, "https://w.example", s.SubjectURL)
	assert.NoError(t, s.Validate())
}

func TestValidate(t *testing.T) {
	assert.Error(t, Subject{ImageCode: "0001"}.Validate())
	assert.Error(t, Subject{Name: "Ibis"}.Validate())
}

func TestParseLicense(t *testing.T) {
	tests := []struct {
		in   string
		want License
	}{
		{"Public Domain", LicensePublicDomain},
		{"public-domain", LicensePublicDomain},
		{"CC BY", LicenseCCBY},
		{"CC-BY", LicenseCCBY},
		{"cc-by-sa", LicenseCCBYSA},
		{"CC BY-NC", LicenseCCBYNC},
		{"CC-BY-NC-SA", LicenseCCBYNCSA},
		{" CC BY-NC-ND ", LicenseCCBYNCND},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLicense(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseLicense("All rights reserved")
	assert.ErrorIs(t, err, ErrUnknownLicense)
}
