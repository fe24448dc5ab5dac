package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/crsmanager/crs-backend/pkg/errors"
)

type samplePayload struct {
	Name     string `json:"name" validate:"required"`
	Quantity int    `json:"quantity" validate:"gt=0"`
}

func TestDecodeJSONBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"bolt","quantity":2}`))
	var payload samplePayload
	require.NoError(t, DecodeJSONBody(req, &payload))
	assert.Equal(t, "bolt", payload.Name)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"bolt","quantity":2,"extra":1}`))
	err := DecodeJSONBody(req, &samplePayload{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"quantity":0}`))
	err = DecodeJSONBody(req, &samplePayload{})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "is required", details["name"])
	assert.Equal(t, "must be greater than 0", details["quantity"])
}

func TestParsePathID(t *testing.T) {
	withParam := func(value string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rc := chi.NewRouteContext()
		rc.URLParams.Add("id", value)
		return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
	}

	id, err := ParsePathID(withParam("42"), "id")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"", "0", "-3", "abc"} {
		_, err := ParsePathID(withParam(bad), "id")
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), bad)
	}
}

func TestParseQueryHelpers(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?buyer_id=7&received=true&session=%202024-2025%20", nil)

	buyerID, err := ParseQueryInt64(req, "buyer_id")
	require.NoError(t, err)
	require.NotNil(t, buyerID)
	assert.Equal(t, int64(7), *buyerID)

	received, err := ParseQueryBool(req, "received")
	require.NoError(t, err)
	require.NotNil(t, received)
	assert.True(t, *received)

	missing, err := ParseQueryBool(req, "cancelled")
	require.NoError(t, err)
	assert.Nil(t, missing)

	session := ParseQueryString(req, "session", 20)
	require.NotNil(t, session)
	assert.Equal(t, "2024-2025", *session)

	bad := httptest.NewRequest(http.MethodGet, "/?buyer_id=x&received=maybe", nil)
	_, err = ParseQueryInt64(bad, "buyer_id")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = ParseQueryBool(bad, "received")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "abc", SanitizeString("  abcdef ", 3))
	assert.Equal(t, "abcdef", SanitizeString("abcdef", 0))
	assert.Equal(t, "ab", SanitizeString("a\x00b\n", 0))
	// "é" is two bytes; a cut through it drops the whole rune.
	assert.Equal(t, "caf", SanitizeString("café", 4))
}
