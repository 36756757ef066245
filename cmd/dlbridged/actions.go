package main

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/dlbridge/dlbridge/internal/bridgeerr"
	"github.com/dlbridge/dlbridge/internal/btrpc"
	"github.com/dlbridge/dlbridge/internal/category"
	"github.com/dlbridge/dlbridge/internal/ed2k"
	"github.com/dlbridge/dlbridge/internal/hashstore"
	"github.com/dlbridge/dlbridge/internal/model"
	"github.com/dlbridge/dlbridge/internal/qbittorrent"
	"github.com/dlbridge/dlbridge/internal/unified"
	"github.com/dlbridge/dlbridge/internal/wsbroadcast"
)

// batchResult is the per-item success/error list every batch-* action
// responds with, so a partial failure never masks the items that did
// succeed.
type batchResult struct {
	Successes []string          `json:"successes"`
	Failures  map[string]string `json:"failures"`
}

func newBatchResult() *batchResult {
	return &batchResult{Failures: make(map[string]string)}
}

// newActionHandler builds the WebSocket inbound action dispatcher: search,
// the batch-{download,pause,resume,delete} family, category CRUD, and
// file-category-change, each routed to the same collaborators the HTTP
// surface drives. ed2kSession/btAdapter may be nil when that back-end is
// disabled.
func newActionHandler(hashes *hashstore.Store, qbAdapter *qbittorrent.Adapter, cats *category.Manager, ed2kSession *ed2k.Session, btAdapter *btrpc.Adapter, plane *unified.Plane) wsbroadcast.ActionHandler {
	return func(ctx context.Context, action string, payload json.RawMessage) (interface{}, error) {
		switch action {
		case "search":
			return handleSearchAction(plane, payload)
		case "batch-download":
			return handleBatchDownloadAction(qbAdapter, payload)
		case "batch-pause":
			return handleBatchAction(payload, qbAdapter.PauseHash)
		case "batch-resume":
			return handleBatchAction(payload, qbAdapter.ResumeHash)
		case "batch-delete":
			return handleBatchDeleteAction(qbAdapter, payload)
		case "category-create":
			return handleCategoryCreateAction(cats, payload)
		case "category-update":
			return handleCategoryUpdateAction(cats, payload)
		case "category-delete":
			return handleCategoryDeleteAction(cats, payload)
		case "file-category-change":
			return handleFileCategoryChangeAction(hashes, cats, ed2kSession, btAdapter, payload)
		default:
			return nil, bridgeerr.New(bridgeerr.KindBadRequest, "ws.action", nil)
		}
	}
}

func handleBatchAction(payload json.RawMessage, fn func(string) error) (interface{}, error) {
	var p struct {
		Hashes []string `json:"hashes"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, bridgeerr.New(bridgeerr.KindBadRequest, "ws.batch", err)
	}
	result := newBatchResult()
	for _, h := range p.Hashes {
		if err := fn(h); err != nil {
			result.Failures[h] = err.Error()
			continue
		}
		result.Successes = append(result.Successes, h)
	}
	return result, nil
}

func handleBatchDeleteAction(qbAdapter *qbittorrent.Adapter, payload json.RawMessage) (interface{}, error) {
	var p struct {
		Hashes      []string `json:"hashes"`
		DeleteFiles bool     `json:"deleteFiles"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, bridgeerr.New(bridgeerr.KindBadRequest, "ws.batch-delete", err)
	}
	result := newBatchResult()
	for _, h := range p.Hashes {
		if err := qbAdapter.RemoveHash(h, p.DeleteFiles); err != nil {
			result.Failures[h] = err.Error()
			continue
		}
		result.Successes = append(result.Successes, h)
	}
	return result, nil
}

func handleBatchDownloadAction(qbAdapter *qbittorrent.Adapter, payload json.RawMessage) (interface{}, error) {
	var p struct {
		URLs     []string `json:"urls"`
		Category string   `json:"category"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, bridgeerr.New(bridgeerr.KindBadRequest, "ws.batch-download", err)
	}
	result := newBatchResult()
	for _, u := range p.URLs {
		if err := qbAdapter.AddURL(u, p.Category); err != nil {
			result.Failures[u] = err.Error()
			continue
		}
		result.Successes = append(result.Successes, u)
	}
	return result, nil
}

func handleSearchAction(plane *unified.Plane, payload json.RawMessage) (interface{}, error) {
	var p struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, bridgeerr.New(bridgeerr.KindBadRequest, "ws.search", err)
	}
	query := strings.ToLower(p.Query)
	matches := make([]*model.Item, 0)
	for _, it := range plane.Items() {
		if query == "" || strings.Contains(strings.ToLower(it.Name), query) {
			matches = append(matches, it)
		}
	}
	return matches, nil
}

func handleCategoryCreateAction(cats *category.Manager, payload json.RawMessage) (interface{}, error) {
	var c model.Category
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, bridgeerr.New(bridgeerr.KindBadRequest, "ws.category-create", err)
	}
	if err := cats.Create(c); err != nil {
		return nil, err
	}
	return cats.List(), nil
}

func handleCategoryUpdateAction(cats *category.Manager, payload json.RawMessage) (interface{}, error) {
	var p struct {
		Name  string         `json:"name"`
		Patch model.Category `json:"patch"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, bridgeerr.New(bridgeerr.KindBadRequest, "ws.category-update", err)
	}
	if err := cats.Update(p.Name, p.Patch); err != nil {
		return nil, err
	}
	return cats.List(), nil
}

func handleCategoryDeleteAction(cats *category.Manager, payload json.RawMessage) (interface{}, error) {
	var p struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, bridgeerr.New(bridgeerr.KindBadRequest, "ws.category-delete", err)
	}
	if err := cats.Delete(p.Name); err != nil {
		return nil, err
	}
	return cats.List(), nil
}

// handleFileCategoryChangeAction reassigns each hash's category, routing
// to the ED2K engine's numeric-id SetCategory or the BT engine's
// label-keyed SetLabel depending on which back-end HashStore says owns
// the hash.
func handleFileCategoryChangeAction(hashes *hashstore.Store, cats *category.Manager, ed2kSession *ed2k.Session, btAdapter *btrpc.Adapter, payload json.RawMessage) (interface{}, error) {
	var p struct {
		Hashes   []string `json:"hashes"`
		Category string   `json:"category"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, bridgeerr.New(bridgeerr.KindBadRequest, "ws.file-category-change", err)
	}
	result := newBatchResult()
	for _, h := range p.Hashes {
		if err := setHashCategory(hashes, cats, ed2kSession, btAdapter, h, p.Category); err != nil {
			result.Failures[h] = err.Error()
			continue
		}
		result.Successes = append(result.Successes, h)
	}
	return result, nil
}

func setHashCategory(hashes *hashstore.Store, cats *category.Manager, ed2kSession *ed2k.Session, btAdapter *btrpc.Adapter, hash, categoryName string) error {
	if ed2kHash := hashes.GetEd2kHash(hash); ed2kHash != "" {
		if ed2kSession == nil {
			return bridgeerr.New(bridgeerr.KindNotConnected, "ws.file-category-change", nil)
		}
		id, ok := cats.IDForName(categoryName)
		if !ok {
			return bridgeerr.New(bridgeerr.KindNotFound, "ws.file-category-change", nil)
		}
		return ed2kSession.SetCategory(ed2kHash, id)
	}
	if btAdapter == nil {
		return bridgeerr.New(bridgeerr.KindNotConnected, "ws.file-category-change", nil)
	}
	return btAdapter.SetLabel(hash, categoryName)
}
