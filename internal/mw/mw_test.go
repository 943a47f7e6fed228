package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestResponseCache(t *testing.T) {
	rc := NewResponseCache(time.Minute)
	hits := 0

	r := gin.New()
	r.Use(rc.Middleware())
	r.GET("/machines", func(c *gin.Context) {
		hits++
		c.JSON(http.StatusOK, gin.H{"hits": hits})
	})
	r.POST("/machines", func(c *gin.Context) { c.Status(http.StatusOK) })

	get := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/machines", nil))
		return w
	}

	first := get()
	second := get()
	assert.Equal(t, 1, hits)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, "application/json; charset=utf-8", second.Header().Get("Content-Type"))

	rc.Flush()
	assert.Zero(t, rc.Len())
	third := get()
	assert.Equal(t, 2, hits)
	assert.JSONEq(t, `{"hits":2}`, third.Body.String())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/machines", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, rc.Len(), "non-GET requests are not cached")
}

func TestResponseCache_FlushDuringRequest(t *testing.T) {
	rc := NewResponseCache(time.Minute)
	status := "available"

	r := gin.New()
	r.Use(rc.Middleware())
	r.GET("/machines", func(c *gin.Context) {
		body := gin.H{"status": status}
		if status == "available" {
			// a write commits and flushes after this read
			status = "in-use"
			rc.Flush()
		}
		c.JSON(http.StatusOK, body)
	})

	get := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/machines", nil))
		return w
	}

	first := get()
	assert.JSONEq(t, `{"status":"available"}`, first.Body.String())
	assert.Zero(t, rc.Len(), "response read before the flush must not be stored")

	second := get()
	assert.Empty(t, second.Header().Get("X-Cache"))
	assert.JSONEq(t, `{"status":"in-use"}`, second.Body.String())
	assert.Equal(t, 1, rc.Len())
}

func TestResponseCache_SkipsErrors(t *testing.T) {
	rc := NewResponseCache(time.Minute)
	r := gin.New()
	r.Use(rc.Middleware())
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Zero(t, rc.Len())
}

func TestIPRateLimiter(t *testing.T) {
	limiter := NewIPRateLimiter(rate.Limit(1), 2)
	r := gin.New()
	r.Use(limiter.Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, "limits are per client")
}

func TestIPRateLimiter_Sweep(t *testing.T) {
	limiter := NewIPRateLimiter(rate.Limit(1), 1)
	now := time.Now()
	limiter.now = func() time.Time { return now }

	limiter.GetLimiter("10.0.0.1")
	now = now.Add(10 * time.Minute)
	limiter.GetLimiter("10.0.0.2")

	assert.Equal(t, 1, limiter.Sweep(5*time.Minute))
	assert.Equal(t, 1, limiter.Len())
}

func TestLogger(t *testing.T) {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)

	r := gin.New()
	r.Use(Logger(l))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok?x=1", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}
