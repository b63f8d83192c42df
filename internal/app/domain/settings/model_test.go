package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefault(t *testing.T) {
	s := Default("us")
	assert.NoError(t, s.Validate())
	assert.Equal(t, []string{"general"}, s.Categories)
}

func TestNormalizeAndValidate(t *testing.T) {
	s := Settings{FontScale: 1.2, Country: " DE ", Categories: []string{"Sports", "sports", " ", "health"}}
	s.Normalize()

	assert.Equal(t, "de", s.Country)
	assert.Equal(t, []string{"sports", "health"}, s.Categories)
	assert.NoError(t, s.Validate())

	bad := s
	bad.FontScale = 5
	assert.Error(t, bad.Validate())

	bad = s
	bad.Country = "deu"
	assert.Error(t, bad.Validate())

	bad = s
	bad.Categories = []string{"gossip"}
	assert.Error(t, bad.Validate())
}
