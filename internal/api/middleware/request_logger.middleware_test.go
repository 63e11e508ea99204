package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/chorus-platform/process-monitor/pkg/logger"
)

func TestRequestLogger_PassesBodyThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger(logger.New("error")))
	r.POST("/echo", func(c *gin.Context) {
		b, _ := io.ReadAll(c.Request.Body)
		c.String(200, string(b))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("hi"))
	r.ServeHTTP(w, req)
	if w.Code != 200 || w.Body.String() != "hi" {
		t.Fatalf("unexpected: %d %q", w.Code, w.Body.String())
	}
}

func TestRequestLogger_ErrorStatusesStillRespond(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger(logger.New("error")))
	r.GET("/boom", func(c *gin.Context) { c.String(http.StatusInternalServerError, "boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if w.Code != http.StatusInternalServerError || w.Body.String() != "boom" {
		t.Fatalf("unexpected: %d %q", w.Code, w.Body.String())
	}
}
