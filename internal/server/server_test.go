package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/dlbridge/dlbridge/internal/category"
	"github.com/dlbridge/dlbridge/internal/model"
	"github.com/dlbridge/dlbridge/internal/resolver"
)

func TestRegisterResolveEndpointReturnsHostname(t *testing.T) {
	gin.SetMode(gin.TestMode)
	res, err := resolver.New(16, time.Hour, time.Minute, time.Second,
		resolver.WithLookupFunc(func(ctx context.Context, ip string) (string, error) {
			return "host.example.com", nil
		}))
	require.NoError(t, err)

	r := gin.New()
	registerResolveEndpoint(r, res)

	req := httptest.NewRequest(http.MethodGet, "/api/resolve?ip=203.0.113.5", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "host.example.com")
}

func TestRegisterResolveEndpointRequiresIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	res, err := resolver.New(16, time.Hour, time.Minute, time.Second)
	require.NoError(t, err)

	r := gin.New()
	registerResolveEndpoint(r, res)

	req := httptest.NewRequest(http.MethodGet, "/api/resolve", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterCategoryRESTDeleteDefaultRefused(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mgr := category.New(nil)
	r := gin.New()
	registerCategoryREST(r, mgr, nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/categories/"+model.DefaultCategoryName, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusConflict, w.Code)
}
