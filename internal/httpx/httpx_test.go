package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"swaft/internal/backend"
	"swaft/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{model.ErrEmptyMessage, http.StatusBadRequest},
		{model.ErrNicknameLength, http.StatusBadRequest},
		{fmt.Errorf("load: %w", backend.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: expired", backend.ErrNoSession), http.StatusUnauthorized},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestFail_HidesInternalErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	Fail(rec, "load rooms", errors.New("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "load rooms failed", body["error"])
}

func TestFail_ShowsValidationErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	Fail(rec, "send", model.ErrEmptyMessage)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), model.ErrEmptyMessage.Error())
}
