package convstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHasAccess(t *testing.T) {
	require.True(t, hasAccess("u1", "u1"))
	require.False(t, hasAccess("u1", "u2"))
	require.False(t, hasAccess("", "u2"))
}

func TestRoleConstants(t *testing.T) {
	require.Equal(t, Role("user"), RoleUser)
	require.Equal(t, Role("assistant"), RoleAssistant)
	require.Equal(t, Role("system"), RoleSystem)
}
