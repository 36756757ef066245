package qbittorrent

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/dlbridge/dlbridge/internal/bridgeerr"
	"github.com/dlbridge/dlbridge/internal/hashstore"
	"github.com/dlbridge/dlbridge/internal/model"
	"github.com/dlbridge/dlbridge/internal/torrentfile"
)

// magnetEd2kCategoryID is the ED2K engine's well-known category id for
// items arriving via magnet-to-ed2k conversion rather than a native
// ed2k:// link typed by a user.
const magnetEd2kCategoryID = 3

// reportedVersion/reportedAPIVersion are the values returned by
// app/version and app/webapiVersion respectively: the bridge impersonates
// a recent qBittorrent release so Sonarr/Radarr/Prowlarr accept it without
// feature-gating on an unrecognised version string.
const (
	reportedVersion    = "v5.1.4"
	reportedAPIVersion = "2.11.4"
)

// Ed2kDispatcher is implemented by the ED2K client adapter.
type Ed2kDispatcher interface {
	AddEd2kLink(link string, categoryID int) error
	Remove(ed2kHash string, deleteFiles bool) error
	Pause(ed2kHash string) error
	Resume(ed2kHash string) error
}

// BTDispatcher is implemented by the BT client adapter.
type BTDispatcher interface {
	AddMagnet(magnet, label string) error
	AddTorrentFile(body []byte, label string) error
	Remove(hash string, deleteFiles bool) error
	Pause(hash string) error
	Resume(hash string) error
}

// Plane supplies the merged item view.
type Plane interface {
	Items() []*model.Item
	ItemsByCategory(category string) []*model.Item
}

// CategoryWriter lets the adapter drive category CRUD through C6.
type CategoryWriter interface {
	Create(c model.Category) error
}

// Adapter implements the qBittorrent WebUI v2 surface.
type Adapter struct {
	plane     Plane
	cats      *CategoryCache
	catWriter CategoryWriter
	hashes    *hashstore.Store
	ed2k      Ed2kDispatcher
	bt        BTDispatcher
	authPassword string

	savePath  string
	tempPath  string
	webUIPort int
}

// Config collects an Adapter's collaborators.
type Config struct {
	Plane        Plane
	Categories   *CategoryCache
	CategoryMgr  CategoryWriter
	Hashes       *hashstore.Store
	Ed2k         Ed2kDispatcher
	BT           BTDispatcher
	AuthPassword string

	// SavePath, TempPath, and WebUIPort populate the frozen preferences
	// response (app/preferences); they reflect the bridge's own
	// configuration, not either back-end's.
	SavePath  string
	TempPath  string
	WebUIPort int
}

// New builds an Adapter from its collaborators.
func New(cfg Config) *Adapter {
	return &Adapter{
		plane:        cfg.Plane,
		cats:         cfg.Categories,
		catWriter:    cfg.CategoryMgr,
		hashes:       cfg.Hashes,
		ed2k:         cfg.Ed2k,
		bt:           cfg.BT,
		authPassword: cfg.AuthPassword,
		savePath:     cfg.SavePath,
		tempPath:     cfg.TempPath,
		webUIPort:    cfg.WebUIPort,
	}
}

// RegisterRoutes wires the adapter's handlers onto an existing gin router
// under /api/v2.
func (a *Adapter) RegisterRoutes(r gin.IRouter) {
	v2 := r.Group("/api/v2")
	v2.GET("/app/version", a.handleVersion)
	v2.GET("/app/webapiVersion", a.handleWebAPIVersion)
	v2.GET("/app/preferences", a.handlePreferences)
	v2.POST("/auth/login", a.handleLogin)
	v2.POST("/auth/logout", a.handleLogout)
	v2.GET("/torrents/info", a.handleTorrentsInfo)
	v2.POST("/torrents/add", a.handleTorrentsAdd)
	v2.POST("/torrents/delete", a.handleTorrentsDelete)
	v2.POST("/torrents/pause", a.handleTorrentsPause)
	v2.POST("/torrents/resume", a.handleTorrentsResume)
	v2.GET("/torrents/categories", a.handleCategories)
	v2.POST("/torrents/createCategory", a.handleCreateCategory)
	v2.GET("/torrents/properties", a.handleProperties)
	v2.GET("/torrents/trackers", a.handleTrackers)
	v2.POST("/torrents/reannounce", a.handleReannounce)
}

func (a *Adapter) handleVersion(c *gin.Context)       { c.String(http.StatusOK, reportedVersion) }
func (a *Adapter) handleWebAPIVersion(c *gin.Context) { c.String(http.StatusOK, reportedAPIVersion) }

// handlePreferences returns the frozen preferences snapshot: the subset of
// the real qBittorrent WebUI's app/preferences response that *arr tooling
// actually reads, bit-exact for compatibility but sourced from the
// bridge's own configuration rather than hardcoded.
func (a *Adapter) handlePreferences(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"save_path":          a.savePath,
		"temp_path":          a.tempPath,
		"temp_path_enabled":  a.tempPath != "",
		"web_ui_port":        a.webUIPort,
	})
}

func (a *Adapter) handleLogin(c *gin.Context) {
	if a.authPassword == "" {
		c.String(http.StatusOK, "Ok.")
		return
	}
	pass := c.PostForm("password")
	if pass != a.authPassword {
		c.String(http.StatusForbidden, "Fails.")
		return
	}
	c.SetCookie("SID", "dlbridge-session", 3600, "/", "", false, true)
	c.String(http.StatusOK, "Ok.")
}

func (a *Adapter) handleLogout(c *gin.Context) {
	c.String(http.StatusOK, "Ok.")
}

func (a *Adapter) handleTorrentsInfo(c *gin.Context) {
	category := c.Query("category")
	items := a.plane.ItemsByCategory(category)
	c.JSON(http.StatusOK, toTorrentInfoList(items))
}

func (a *Adapter) handleCategories(c *gin.Context) {
	cache := a.cats.AwaitInit(c.Request.Context())
	c.JSON(http.StatusOK, cache)
}

func (a *Adapter) handleCreateCategory(c *gin.Context) {
	name := c.PostForm("category")
	savePath := c.PostForm("savePath")
	if name == "" {
		c.String(http.StatusBadRequest, "Fail.")
		return
	}
	if err := a.catWriter.Create(model.Category{Name: name, Path: savePath}); err != nil {
		c.String(http.StatusConflict, "Fail.")
		return
	}
	if err := a.cats.Sync(c.Request.Context()); err != nil {
		log.WithError(err).Warn("qbittorrent: category sync after create failed")
	}
	c.String(http.StatusOK, "Ok.")
}

// handleTorrentsAdd accepts newline-separated urls (magnet: or http(s)
// .torrent URLs), a multipart torrents upload, and a category name.
func (a *Adapter) handleTorrentsAdd(c *gin.Context) {
	category := c.PostForm("category")
	allOK := true

	urls := c.PostForm("urls")
	for _, raw := range strings.Split(urls, "\n") {
		u := strings.TrimSpace(raw)
		if u == "" {
			continue
		}
		if err := a.AddURL(u, category); err != nil {
			log.WithError(err).Warn("qbittorrent: add failed for url")
			allOK = false
		}
	}

	if form, err := c.MultipartForm(); err == nil && form != nil {
		for _, fh := range form.File["torrents"] {
			f, err := fh.Open()
			if err != nil {
				allOK = false
				continue
			}
			body, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				allOK = false
				continue
			}
			if err := a.addTorrentBody(body, category); err != nil {
				log.WithError(err).Warn("qbittorrent: add failed for uploaded torrent")
				allOK = false
			}
		}
	}

	if allOK {
		c.String(http.StatusOK, "Ok.")
	} else {
		c.String(http.StatusOK, "Fail.")
	}
}

// AddURL dispatches an add-by-URL request: magnet URIs route through
// addMagnet, anything else is fetched and treated as an uploaded torrent
// body. Shared by the HTTP torrents/add handler and the WebSocket
// batch-download action.
func (a *Adapter) AddURL(raw, category string) error {
	if strings.HasPrefix(raw, "magnet:") {
		return a.addMagnet(raw, category)
	}
	// HTTP(S) .torrent URL: fetch and treat as an uploaded body.
	resp, err := http.Get(raw)
	if err != nil {
		return bridgeerr.New(bridgeerr.KindTransport, "qbittorrent.AddURL", err)
	}
	defer resp.Body.Close()
	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return bridgeerr.New(bridgeerr.KindTransport, "qbittorrent.AddURL", err)
	}
	return a.addTorrentBody(buf, category)
}

// addMagnet converts a BT-looking magnet into the ed2k:// link the ED2K
// engine's addLink expects: the magnet's xt/dn/xl parameters feed
// convertMagnetToEd2k, the resulting ed2k hash is bound to the magnet's own
// btih in HashStore so later delete/pause/resume calls route correctly,
// and only then is the link handed to the ED2K engine.
func (a *Adapter) addMagnet(raw, category string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return bridgeerr.New(bridgeerr.KindBadRequest, "qbittorrent.addMagnet", err)
	}
	q := u.Query()
	xt := q.Get("xt")
	const prefix = "urn:btih:"
	idx := strings.Index(xt, prefix)
	if idx < 0 {
		return bridgeerr.New(bridgeerr.KindBadRequest, "qbittorrent.addMagnet", nil)
	}
	btih := strings.ToLower(xt[idx+len(prefix):])
	name := q.Get("dn")
	if name == "" {
		name = btih
	}
	var size int64
	if xl := q.Get("xl"); xl != "" {
		size, _ = strconv.ParseInt(xl, 10, 64)
	}

	ed2kLink, ed2kHash := convertMagnetToEd2k(btih, name, size)
	if _, err := a.hashes.SetMapping(ed2kHash, btih, hashstore.Meta{Name: name, Category: category}); err != nil {
		return err
	}
	return a.ed2k.AddEd2kLink(ed2kLink, magnetEd2kCategoryID)
}

// convertMagnetToEd2k derives an ed2k:// link (and the native ED2K hash
// bound to it in HashStore) from a magnet's xt/dn/xl parameters. The BT
// info-hash's first 32 hex characters double as the synthetic ED2K hash,
// keeping the link's hash field the width the ED2K engine expects.
func convertMagnetToEd2k(btih, name string, size int64) (ed2kLink, ed2kHash string) {
	ed2kHash = btih
	if len(ed2kHash) > 32 {
		ed2kHash = ed2kHash[:32]
	}
	return fmt.Sprintf("ed2k://|file|%s|%d|%s|/", name, size, ed2kHash), ed2kHash
}

func (a *Adapter) addTorrentBody(body []byte, category string) error {
	if _, err := torrentfile.Parse(body); err != nil {
		return err
	}
	return a.bt.AddTorrentFile(body, category)
}

func (a *Adapter) handleTorrentsDelete(c *gin.Context) {
	deleteFiles := c.PostForm("deleteFiles") == "true"
	a.forEachHash(c, func(hash string) error { return a.RemoveHash(hash, deleteFiles) })
	c.String(http.StatusOK, "Ok.")
}

func (a *Adapter) handleTorrentsPause(c *gin.Context) {
	a.forEachHash(c, a.PauseHash)
	c.String(http.StatusOK, "Ok.")
}

func (a *Adapter) handleTorrentsResume(c *gin.Context) {
	a.forEachHash(c, a.ResumeHash)
	c.String(http.StatusOK, "Ok.")
}

// RemoveHash dispatches a single-hash delete to whichever back-end owns
// it, releasing the HashStore mapping for ED2K items. Shared by the HTTP
// torrents/delete handler and the WebSocket batch-delete action.
func (a *Adapter) RemoveHash(hash string, deleteFiles bool) error {
	if ed2k := a.hashes.GetEd2kHash(hash); ed2k != "" {
		if err := a.ed2k.Remove(ed2k, deleteFiles); err != nil {
			return err
		}
		a.hashes.RemoveMapping(ed2k)
		return nil
	}
	return a.bt.Remove(hash, deleteFiles)
}

// PauseHash dispatches a single-hash pause to whichever back-end owns it.
func (a *Adapter) PauseHash(hash string) error {
	if ed2k := a.hashes.GetEd2kHash(hash); ed2k != "" {
		return a.ed2k.Pause(ed2k)
	}
	return a.bt.Pause(hash)
}

// ResumeHash dispatches a single-hash resume to whichever back-end owns it.
func (a *Adapter) ResumeHash(hash string) error {
	if ed2k := a.hashes.GetEd2kHash(hash); ed2k != "" {
		return a.ed2k.Resume(ed2k)
	}
	return a.bt.Resume(hash)
}

func (a *Adapter) forEachHash(c *gin.Context, fn func(hash string) error) {
	for _, hash := range strings.Split(c.PostForm("hashes"), "|") {
		hash = strings.TrimSpace(hash)
		if hash == "" {
			continue
		}
		if err := fn(hash); err != nil {
			log.WithError(err).Warn("qbittorrent: per-hash action failed")
		}
	}
}

// handleProperties supplements the core WebUI surface with the single-torrent
// details view *arr tools occasionally probe.
func (a *Adapter) handleProperties(c *gin.Context) {
	hash := c.Query("hash")
	for _, it := range a.plane.Items() {
		if it.Hash == hash {
			c.JSON(http.StatusOK, gin.H{
				"name":       it.Name,
				"save_path":  "",
				"total_size": it.Size,
				"addition_date": it.AddedAt.Unix(),
			})
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{})
}

// handleTrackers supplements the core surface; the bridge has no
// per-tracker peer/seed counts to report, so it returns the single
// tracker URL at "working" status.
func (a *Adapter) handleTrackers(c *gin.Context) {
	hash := c.Query("hash")
	for _, it := range a.plane.Items() {
		if it.Hash == hash {
			c.JSON(http.StatusOK, []gin.H{{
				"url":    it.FirstTrackerURL(),
				"status": 2, // working
			}})
			return
		}
	}
	c.JSON(http.StatusOK, []gin.H{})
}

// handleReannounce is a stub: neither back-end exposes a forced-reannounce
// primitive the bridge can translate to, so this accepts the call (as *arr
// tools expect a 200) without effect.
func (a *Adapter) handleReannounce(c *gin.Context) {
	c.String(http.StatusOK, "Ok.")
}

func toTorrentInfoList(items []*model.Item) []gin.H {
	out := make([]gin.H, 0, len(items))
	for _, it := range items {
		var eta int64 = -1
		if it.ETA != nil {
			eta = *it.ETA
		}
		out = append(out, gin.H{
			"hash":          it.Hash,
			"name":          it.Name,
			"size":          it.Size,
			"completed":     it.SizeDownloaded,
			"progress":      it.Progress / 100.0,
			"dlspeed":       it.DownloadSpeed,
			"upspeed":       it.UploadSpeed,
			"uploaded":      it.UploadTotal,
			"eta":           eta,
			"state":         string(it.Status),
			"category":      it.Category,
			"tracker":       it.Tracker,
			"added_on":      it.AddedAt.Unix(),
			"completion_on": completionUnix(it),
		})
	}
	return out
}

func completionUnix(it *model.Item) int64 {
	if it.CompletedAt == nil {
		return -1
	}
	return it.CompletedAt.Unix()
}
