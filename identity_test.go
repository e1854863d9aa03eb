package pstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentityToPathBasic(t *testing.T) {
	assert.Equal(t, "registry.example.org/foo/1.2.3", IdentityToPath("registry.example.org/foo/1.2.3"))
}

func TestIdentityToPathCollapsesDotDot(t *testing.T) {
	assert.Equal(t, "foo/etc/passwd", IdentityToPath("foo/../../etc/passwd"))
}

func TestIdentityToPathSanitizesUnsafeChars(t *testing.T) {
	assert.Equal(t, "foo_bar/1.0.0", IdentityToPath("foo bar/1.0.0"))
}

func TestIdentityToPathPreservesScope(t *testing.T) {
	assert.Equal(t, "@scope/name/1.0.0", IdentityToPath("@scope/name/1.0.0"))
}
