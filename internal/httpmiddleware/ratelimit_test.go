package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestAllow(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	l := NewTokenBucket(2, 60, nil)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))

	now = now.Add(time.Second)
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))

	now = now.Add(time.Hour)
	assert.Equal(t, 2, l.Sweep(time.Minute))
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := NewTokenBucket(1, 1, func(c *gin.Context) string { return c.GetHeader("X-Roll") })
	r := gin.New()
	r.POST("/exec", l.GinMiddleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(roll string) int {
		req := httptest.NewRequest(http.MethodPost, "/exec", nil)
		req.Header.Set("X-Roll", roll)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}
	assert.Equal(t, http.StatusOK, do("1"))
	assert.Equal(t, http.StatusTooManyRequests, do("1"))
	assert.Equal(t, http.StatusOK, do("2"))
}
