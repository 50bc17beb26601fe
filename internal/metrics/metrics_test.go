package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveChat(t *testing.T) {
	before := testutil.ToFloat64(ChatRequestsTotal.WithLabelValues("error"))
	ObserveChat("openai", errors.New("boom"), time.Second)
	require.Equal(t, before+1, testutil.ToFloat64(ChatRequestsTotal.WithLabelValues("error")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	RetrievalTotal.WithLabelValues("web").Inc()
	r := gin.New()
	r.GET("/metrics", Handler())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "pal_retrieval_total")
}
