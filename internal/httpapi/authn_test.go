package httpapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractBearerToken(t *testing.T) {
	token, err := extractBearerToken("Bearer abc.def.ghi")
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", token)

	for _, header := range []string{
		"",
		"Bearer",
		"Bearer ",
		"bearer abc",
		"BEARER abc",
		"Token abc",
		" Bearer abc",
		"Bearer  abc",
		"Bearer abc def",
		"Bearer abc\t",
	} {
		_, err := extractBearerToken(header)
		assert.ErrorIs(t, err, errMalformedAuthHeader, "header %q", header)
	}
}
