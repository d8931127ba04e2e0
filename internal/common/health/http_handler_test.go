package health

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerHealthy(t *testing.T) {
	checker := NewStartupCompleteChecker()
	checker.MarkComplete()

	recorder := httptest.NewRecorder()
	Handler(checker).ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusNoContent, recorder.Code)
}

func TestHandlerUnhealthy(t *testing.T) {
	checker := NewMultiChecker(NewStartupCompleteChecker())

	recorder := httptest.NewRecorder()
	Handler(checker).ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "startup not complete")
}

func TestMultiCheckerAggregatesFailures(t *testing.T) {
	first := NewStartupCompleteChecker()
	second := NewStartupCompleteChecker()
	mc := NewMultiChecker(first)
	mc.Add(second)

	require.Error(t, mc.Check())

	first.MarkComplete()
	require.Error(t, mc.Check())

	second.MarkComplete()
	assert.NoError(t, mc.Check())
}
