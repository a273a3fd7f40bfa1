package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"invoice-financing/internal/adapter/http/middleware"
	redisStore "invoice-financing/internal/adapter/storage/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_WithRedisStore(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := redisStore.NewRateLimitStore(client)
	r := gin.New()
	r.POST("/auth/login", middleware.RateLimiter(store, "auth_login", middleware.RateLimitRule{Limit: 3, Window: time.Minute}, zerolog.Nop()),
		func(c *gin.Context) { c.Status(http.StatusOK) })

	login := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
		return w
	}

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, login().Code, "attempt %d", i+1)
	}
	assert.Equal(t, http.StatusTooManyRequests, login().Code)

	mr.FastForward(61 * time.Second)
	assert.Equal(t, http.StatusOK, login().Code, "new window")
}
