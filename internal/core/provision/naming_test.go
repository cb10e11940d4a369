package provision

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTargetSuffix(t *testing.T) {
	suffix := TargetSuffix("tenant-1", "shop")

	assert.Len(t, suffix, 8)
	assert.Equal(t, suffix, TargetSuffix("tenant-1", "shop"))

	// Different tenants deploying the same project name must not collide.
	assert.NotEqual(t, suffix, TargetSuffix("tenant-2", "shop"))
	// The separator keeps ("ab","c") and ("a","bc") apart.
	assert.NotEqual(t, TargetSuffix("ab", "c"), TargetSuffix("a", "bc"))
}

func TestResourceName(t *testing.T) {
	tests := []struct {
		project string
		want    string
	}{
		{"My Shop", "cfo-my-shop-a1b2c3d4"},
		{"shop", "cfo-shop-a1b2c3d4"},
		{"Crème Brûlée!!", "cfo-cr-me-br-l-e-a1b2c3d4"},
		{"--weird--", "cfo-weird-a1b2c3d4"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ResourceName(tt.project, "a1b2c3d4"), tt.project)
	}
}

func TestDatabaseName(t *testing.T) {
	assert.Equal(t, "my_shop", DatabaseName("My Shop"))
	assert.Equal(t, "app", DatabaseName("!!!"))

	long := DatabaseName(strings.Repeat("a", 64))
	assert.Len(t, long, 32)
}
