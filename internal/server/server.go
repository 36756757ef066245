// Package server is the HTTP composition root: it builds a single gin
// engine and mounts the qBittorrent, Torznab, WebSocket, metrics, and
// category-REST surfaces onto it, the way the teacher's tracker package
// builds one gin.Engine via NewAPIHandler and layers every route group
// onto it rather than running several listeners.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/dlbridge/dlbridge/internal/bridgeerr"
	"github.com/dlbridge/dlbridge/internal/category"
	"github.com/dlbridge/dlbridge/internal/metrics"
	"github.com/dlbridge/dlbridge/internal/model"
	"github.com/dlbridge/dlbridge/internal/qbittorrent"
	"github.com/dlbridge/dlbridge/internal/resolver"
	"github.com/dlbridge/dlbridge/internal/torznab"
	"github.com/dlbridge/dlbridge/internal/wsbroadcast"
)

// Config collects every component the composition root wires together.
type Config struct {
	Categories  *category.Manager
	QBittorrent *qbittorrent.Adapter
	Torznab     *torznab.Adapter
	Broadcaster *wsbroadcast.Broadcaster
	Resolver    *resolver.Resolver
	Clients     []model.ClientKind
}

// New builds the gin engine with every route group mounted.
func New(cfg Config) *gin.Engine {
	r := gin.New()
	r.Use(ginLoggerMiddleware(), gin.Recovery())

	cfg.QBittorrent.RegisterRoutes(r)
	if cfg.Torznab != nil {
		cfg.Torznab.RegisterRoutes(r, "/torznab/api")
	}
	r.GET("/ws", func(c *gin.Context) { cfg.Broadcaster.ServeHTTP(c.Writer, c.Request) })
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	registerCategoryREST(r, cfg.Categories, cfg.Clients)
	if cfg.Resolver != nil {
		registerResolveEndpoint(r, cfg.Resolver)
	}

	return r
}

// registerResolveEndpoint exposes on-demand hostname lookups so the settings
// UI can show a peer's reverse DNS name next to its IP without every
// qBittorrent-surface response paying for the lookup itself.
func registerResolveEndpoint(r gin.IRouter, res *resolver.Resolver) {
	r.GET("/api/resolve", func(c *gin.Context) {
		ip := c.Query("ip")
		if ip == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing ip query parameter"})
			return
		}
		hostname, ok := res.GetHostname(ip)
		c.JSON(http.StatusOK, gin.H{"ip": ip, "hostname": hostname, "resolved": ok})
	})
}

func ginLoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
		}).Debug("request handled")
	}
}

// registerCategoryREST mounts the REST surface used by the settings UI for
// category CRUD and path-warning checks, supplementing the qBittorrent
// WebUI's own category endpoints with a richer, name-keyed view.
func registerCategoryREST(r gin.IRouter, mgr *category.Manager, clients []model.ClientKind) {
	grp := r.Group("/api/categories")

	grp.GET("", func(c *gin.Context) {
		c.JSON(http.StatusOK, mgr.List())
	})

	grp.POST("", func(c *gin.Context) {
		var cat model.Category
		if err := c.ShouldBindJSON(&cat); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := mgr.Create(cat); err != nil {
			writeBridgeErr(c, err)
			return
		}
		c.Status(http.StatusCreated)
	})

	grp.PATCH("/:name", func(c *gin.Context) {
		var patch model.Category
		if err := c.ShouldBindJSON(&patch); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := mgr.Update(c.Param("name"), patch); err != nil {
			writeBridgeErr(c, err)
			return
		}
		c.Status(http.StatusOK)
	})

	grp.DELETE("/:name", func(c *gin.Context) {
		if err := mgr.Delete(c.Param("name")); err != nil {
			writeBridgeErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	grp.GET("/check-path", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"hasWarnings": mgr.HasPathWarnings(clients),
			"warnings":    mgr.PathWarnings(clients),
		})
	})
}

func writeBridgeErr(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch bridgeerr.KindOf(err) {
	case bridgeerr.KindConflict:
		status = http.StatusConflict
	case bridgeerr.KindNotFound:
		status = http.StatusNotFound
	case bridgeerr.KindBadRequest:
		status = http.StatusBadRequest
	case bridgeerr.KindNotConnected, bridgeerr.KindUnavailable:
		status = http.StatusServiceUnavailable
	case bridgeerr.KindTimeout:
		status = http.StatusGatewayTimeout
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
