package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	j := NewJWT("secret")
	token, err := j.Issue(42, time.Now(), time.Hour)
	require.NoError(t, err)

	id, err := j.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)
}

func TestParse_Rejects(t *testing.T) {
	j := NewJWT("secret")

	_, err := j.Parse("")
	assert.True(t, errors.Is(err, ErrInvalidToken))

	other, _ := NewJWT("other").Issue(1, time.Now(), time.Hour)
	_, err = j.Parse(other)
	assert.True(t, errors.Is(err, ErrInvalidToken))

	expired, _ := j.Issue(1, time.Now().Add(-2*time.Hour), time.Hour)
	_, err = j.Parse(expired)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?token=q", nil)
	assert.Equal(t, "q", TokenFromRequest(r))

	r.Header.Set("Authorization", "Bearer h")
	assert.Equal(t, "h", TokenFromRequest(r))
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	j := NewJWT("secret")
	r := gin.New()
	r.GET("/me", Middleware(j), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": UserID(c)})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, _ := j.Issue(7, time.Now(), time.Hour)
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":7}`, w.Body.String())
}
