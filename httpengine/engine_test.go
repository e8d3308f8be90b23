package httpengine

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeURIDefaultsScheme(t *testing.T) {
	r := httptest.NewRequest("GET", "/api_path?hello=world", nil)
	r.URL.Scheme = ""
	require.NoError(t, normalizeURI(r))
	require.Equal(t, "http", r.URL.Scheme)
}

func TestNormalizeURIUsesHostHeader(t *testing.T) {
	r := httptest.NewRequest("GET", "/api_path", nil)
	r.Host = "localhost:8080"
	r.URL.Host = ""
	require.NoError(t, normalizeURI(r))
	require.Equal(t, "localhost:8080", r.URL.Host)
}

func TestNormalizeURIRejectsMissingPath(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.URL.Path = ""
	r.URL.RawQuery = ""
	require.Error(t, normalizeURI(r))
}
