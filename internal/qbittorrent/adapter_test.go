package qbittorrent

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/dlbridge/dlbridge/internal/hashstore"
	"github.com/dlbridge/dlbridge/internal/model"
)

type fakePlane struct {
	items []*model.Item
}

func (p *fakePlane) Items() []*model.Item { return p.items }
func (p *fakePlane) ItemsByCategory(category string) []*model.Item {
	if category == "" {
		return p.items
	}
	var out []*model.Item
	for _, it := range p.items {
		if it.Category == category {
			out = append(out, it)
		}
	}
	return out
}

type fakeEd2k struct {
	removed []string
	added   []string
	addedCategoryIDs []int
}

func (f *fakeEd2k) AddEd2kLink(link string, categoryID int) error {
	f.added = append(f.added, link)
	f.addedCategoryIDs = append(f.addedCategoryIDs, categoryID)
	return nil
}
func (f *fakeEd2k) Remove(hash string, deleteFiles bool) error {
	f.removed = append(f.removed, hash)
	return nil
}
func (f *fakeEd2k) Pause(hash string) error  { return nil }
func (f *fakeEd2k) Resume(hash string) error { return nil }

type fakeBT struct{ magnets []string }

func (f *fakeBT) AddMagnet(magnet, label string) error {
	f.magnets = append(f.magnets, magnet)
	return nil
}
func (f *fakeBT) AddTorrentFile(body []byte, label string) error { return nil }
func (f *fakeBT) Remove(hash string, deleteFiles bool) error     { return nil }
func (f *fakeBT) Pause(hash string) error                        { return nil }
func (f *fakeBT) Resume(hash string) error                       { return nil }

func newTestAdapter(t *testing.T) (*Adapter, *gin.Engine, *fakeBT, *fakeEd2k, *hashstore.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store, err := hashstore.Open(t.TempDir() + "/hashes.json")
	require.NoError(t, err)
	bt := &fakeBT{}
	ed2k := &fakeEd2k{}
	a := New(Config{
		Plane:  &fakePlane{},
		Hashes: store,
		Ed2k:   ed2k,
		BT:     bt,
	})
	r := gin.New()
	a.RegisterRoutes(r)
	return a, r, bt, ed2k, store
}

func performRequest(r http.Handler, method, path string, body url.Values) *httptest.ResponseRecorder {
	var reqBody *strings.Reader
	if body != nil {
		reqBody = strings.NewReader(body.Encode())
	} else {
		reqBody = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandleVersionImpersonatesRecentRelease(t *testing.T) {
	_, r, _, _, _ := newTestAdapter(t)
	w := performRequest(r, "GET", "/api/v2/app/version", nil)
	require.Equal(t, 200, w.Code)
	require.Equal(t, reportedVersion, w.Body.String())
}

// TestHandleTorrentsAddMagnet covers scenario S3: a BT-looking magnet is
// converted to an ed2k:// link, the HashStore mapping is inserted keyed on
// the magnet's own btih, and the link (not the raw magnet) reaches the
// ED2K engine — the magnet never reaches the BT back-end at all.
func TestHandleTorrentsAddMagnet(t *testing.T) {
	_, r, bt, ed2k, hashes := newTestAdapter(t)
	const btih = "0123456789abcdef0123456789abcdef01234567"
	form := url.Values{}
	form.Set("urls", "magnet:?xt=urn:btih:"+btih+"&dn=File.iso&xl=1048576")
	form.Set("category", "Movies")
	w := performRequest(r, "POST", "/api/v2/torrents/add", form)
	require.Equal(t, 200, w.Code)
	require.Equal(t, "Ok.", w.Body.String())

	require.Len(t, bt.magnets, 0)
	require.Len(t, ed2k.added, 1)
	require.Contains(t, ed2k.added[0], "File.iso")
	require.Contains(t, ed2k.added[0], "1048576")
	require.Equal(t, []int{magnetEd2kCategoryID}, ed2k.addedCategoryIDs)

	require.Equal(t, btih, hashes.GetMagnetHash(btih[:32]))
}

func TestHandleTorrentsAddRejectsMalformedMagnet(t *testing.T) {
	_, r, bt, ed2k, _ := newTestAdapter(t)
	form := url.Values{}
	form.Set("urls", "magnet:?dn=NoHash")
	w := performRequest(r, "POST", "/api/v2/torrents/add", form)
	require.Equal(t, 200, w.Code)
	require.Equal(t, "Fail.", w.Body.String())
	require.Len(t, bt.magnets, 0)
	require.Len(t, ed2k.added, 0)
}

func TestHandleTorrentsDeleteUsesHashStoreForEd2k(t *testing.T) {
	_, r, _, _, hashes := newTestAdapter(t)
	magnet, err := hashes.SetMapping("ed2k-1", "", hashstore.Meta{Name: "x"})
	require.NoError(t, err)

	form := url.Values{}
	form.Set("hashes", magnet)
	w := performRequest(r, "POST", "/api/v2/torrents/delete", form)
	require.Equal(t, 200, w.Code)
	require.Equal(t, "", hashes.GetEd2kHash(magnet))
}

func TestHandleLoginRequiresConfiguredPassword(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store, err := hashstore.Open(t.TempDir() + "/hashes.json")
	require.NoError(t, err)
	a := New(Config{Plane: &fakePlane{}, Hashes: store, Ed2k: &fakeEd2k{}, BT: &fakeBT{}, AuthPassword: "secret"})
	r := gin.New()
	a.RegisterRoutes(r)

	form := url.Values{}
	form.Set("password", "wrong")
	w := performRequest(r, "POST", "/api/v2/auth/login", form)
	require.Equal(t, http.StatusForbidden, w.Code)

	form.Set("password", "secret")
	w = performRequest(r, "POST", "/api/v2/auth/login", form)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "Ok.", w.Body.String())
}
