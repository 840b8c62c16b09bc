package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDate(t *testing.T) {
	cases := map[string]string{
		"2024-03-05":           "2024-03-05",
		"2024/03/05":           "2024-03-05",
		"2024.03.05":           "2024-03-05",
		"20240305":             "2024-03-05",
		"2024-03-05 14:22:00":  "2024-03-05",
		"2024-03-05T14:22:00Z": "2024-03-05",
		"  2024-03-05  ":       "2024-03-05",
		"":                     "",
		"날짜없음":                 "",
		"05/2024":              "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeDate(in), "input %q", in)
	}
}

func TestRespondWithPayloadEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondWithPayload(rec, map[string]interface{}{"count": 3})

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 3, body["count"])
}

func TestRespondWithErrorEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondWithError(rec, http.StatusConflict, "mapping is frozen")

	assert.Equal(t, http.StatusConflict, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "mapping is frozen", body["error"])
}
