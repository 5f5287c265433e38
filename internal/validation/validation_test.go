package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidLink(t *testing.T) {
	tests := []struct {
		name  string
		link  string
		valid bool
	}{
		{name: "instagram post", link: "https://www.instagram.com/p/Cx1Yz/", valid: true},
		{name: "http scheme", link: "http://youtube.com/watch?v=abc", valid: true},
		{name: "username", link: "@smm.panel_1", valid: true},
		{name: "bare username", link: "channelname", valid: true},
		{name: "ftp scheme", link: "ftp://example.com/file", valid: false},
		{name: "host without dot", link: "https://localhost/x", valid: false},
		{name: "spaces inside", link: "not a link", valid: false},
		{name: "empty", link: "  ", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidLink(tt.link))
		})
	}
}

func TestParseComments(t *testing.T) {
	assert.Equal(t, []string{"great", "love it"}, ParseComments("great\r\n\n  love it  \n"))
	assert.Nil(t, ParseComments("\n \n"))
}

type testRequest struct {
	Link   string `json:"link" validate:"required,smmlink"`
	Amount string `json:"amount" validate:"required,money"`
	Delta  string `json:"delta" validate:"omitempty,delta"`
}

func TestStruct(t *testing.T) {
	assert.Nil(t, Struct(testRequest{Link: "https://t.me/channel", Amount: "10.50", Delta: "-3"}))

	errs := Struct(testRequest{Link: "bad link", Amount: "-1", Delta: "0"})
	assert.Equal(t, "Invalid link", errs["link"])
	assert.Equal(t, "Amount must be a positive number", errs["amount"])
	assert.Equal(t, "Amount must be a non-zero number", errs["delta"])

	errs = Struct(testRequest{})
	assert.Equal(t, "This field is required", errs["link"])
	assert.Equal(t, "This field is required", errs["amount"])
	_, hasDelta := errs["delta"]
	assert.False(t, hasDelta)
}
