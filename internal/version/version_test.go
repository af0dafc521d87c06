package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAccessorsMatchInfo(t *testing.T) {
	v, c, d := Info()

	require.NotEmpty(t, v)
	require.Equal(t, v, GetVersion())
	require.Equal(t, c, GetCommit())
	require.Equal(t, d, GetDate())
}

func TestStringIncludesBuildFields(t *testing.T) {
	original := [3]string{version, commit, date}
	t.Cleanup(func() { version, commit, date = original[0], original[1], original[2] })

	version, commit, date = "v1.4.0", "abc123", "2026-10-01"

	require.Equal(t, "version=v1.4.0 commit=abc123 date=2026-10-01", String())
	require.Equal(t, "v1.4.0", GetVersion())
}
