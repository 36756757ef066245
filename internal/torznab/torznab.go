// Package torznab re-exposes search results as a Torznab-compatible RSS
// feed for Prowlarr. XML encoding uses the standard library the same way
// the pack's own torznab clients do — there is no server-side Torznab
// library in the ecosystem to reuse, only client SDKs.
package torznab

import (
	"encoding/xml"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dlbridge/dlbridge/internal/model"
)

// Capabilities is returned for t=caps.
type Capabilities struct {
	XMLName  xml.Name `xml:"caps"`
	Server   capsServer `xml:"server"`
	Searching capsSearching `xml:"searching"`
}

type capsServer struct {
	Version string `xml:"version,attr"`
	Title   string `xml:"title,attr"`
}

type capsSearching struct {
	Search       capsMode `xml:"search"`
	TVSearch     capsMode `xml:"tv-search"`
	MovieSearch  capsMode `xml:"movie-search"`
}

type capsMode struct {
	Available       string `xml:"available,attr"`
	SupportedParams string `xml:"supportedParams,attr"`
}

// RSS is the search-result feed shape.
type RSS struct {
	XMLName xml.Name `xml:"rss"`
	Version string   `xml:"version,attr"`
	Channel Channel  `xml:"channel"`
}

// Channel holds the Torznab namespace and result items.
type Channel struct {
	Title string `xml:"title"`
	Items []Item `xml:"item"`
}

// Item is one Torznab search result, shaped from a unified model.Item.
type Item struct {
	Title    string     `xml:"title"`
	GUID     string     `xml:"guid"`
	Link     string     `xml:"link"`
	Size     int64      `xml:"size"`
	PubDate  string     `xml:"pubDate"`
	Attrs    []torznabAttr `xml:"torznab:attr"`
}

type torznabAttr struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// SearchSource supplies search results; ProwlarrPassthrough implements it.
type SearchSource interface {
	Search(query string) ([]*model.Item, error)
}

// Adapter implements the Torznab indexer HTTP surface.
type Adapter struct {
	source   SearchSource
	apiKey   string
	baseLink string
}

// Config collects an Adapter's collaborators.
type Config struct {
	Source   SearchSource
	APIKey   string
	BaseLink string
}

// New builds an Adapter.
func New(cfg Config) *Adapter {
	return &Adapter{source: cfg.Source, apiKey: cfg.APIKey, baseLink: cfg.BaseLink}
}

// RegisterRoutes wires the Torznab endpoint at the given path (conventionally
// /torznab/api).
func (a *Adapter) RegisterRoutes(r gin.IRouter, path string) {
	r.GET(path, a.handle)
}

func (a *Adapter) handle(c *gin.Context) {
	if a.apiKey != "" && c.Query("apikey") != a.apiKey {
		c.XML(http.StatusUnauthorized, gin.H{"error": "bad apikey"})
		return
	}

	switch c.Query("t") {
	case "caps", "":
		c.XML(http.StatusOK, a.caps())
	case "search", "tvsearch", "movie":
		a.handleSearch(c)
	default:
		c.XML(http.StatusBadRequest, gin.H{"error": "unknown function"})
	}
}

func (a *Adapter) caps() Capabilities {
	avail := capsMode{Available: "yes", SupportedParams: "q"}
	return Capabilities{
		Server:    capsServer{Version: "1.0", Title: "dlbridge"},
		Searching: capsSearching{Search: avail, TVSearch: avail, MovieSearch: avail},
	}
}

func (a *Adapter) handleSearch(c *gin.Context) {
	query := c.Query("q")
	results, err := a.source.Search(query)
	if err != nil {
		c.XML(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	channel := Channel{Title: "dlbridge search results"}
	for _, it := range results {
		channel.Items = append(channel.Items, Item{
			Title:   it.Name,
			GUID:    it.Hash,
			Link:    a.baseLink + "/download/" + it.Hash,
			Size:    it.Size,
			PubDate: it.AddedAt.Format(http.TimeFormat),
			Attrs: []torznabAttr{
				{Name: "size", Value: strconv.FormatInt(it.Size, 10)},
				{Name: "seeders", Value: "1"},
				{Name: "infohash", Value: it.Hash},
			},
		})
	}

	c.XML(http.StatusOK, RSS{Version: "2.0", Channel: channel})
}
