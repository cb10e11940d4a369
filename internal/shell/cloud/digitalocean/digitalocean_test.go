package digitalocean

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitImageRef(t *testing.T) {
	tests := []struct {
		ref      string
		wantRepo string
		wantTag  string
	}{
		{"registry.digitalocean.com/acme/shop:v3", "shop", "v3"},
		{"registry.digitalocean.com/acme/shop", "shop", "latest"},
		{"shop:latest", "shop", "latest"},
		{"shop", "shop", "latest"},
		{"localhost:5000/acme/shop", "shop", "latest"},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			repo, tag := splitImageRef(tt.ref)
			assert.Equal(t, tt.wantRepo, repo)
			assert.Equal(t, tt.wantTag, tag)
		})
	}
}

func TestInstanceSizeFor(t *testing.T) {
	assert.Equal(t, "basic-xxs", instanceSizeFor(512))
	assert.Equal(t, "basic-xs", instanceSizeFor(1024))
	assert.Equal(t, "basic-s", instanceSizeFor(2048))
}
