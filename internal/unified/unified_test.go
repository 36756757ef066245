package unified

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dlbridge/dlbridge/internal/model"
)

type fakeSource struct {
	client model.ClientKind
	items  []*model.Item
	err    error
}

func (f *fakeSource) Client() model.ClientKind { return f.client }
func (f *fakeSource) Snapshot(ctx context.Context) ([]*model.Item, error) {
	return f.items, f.err
}

func TestTrackerDomainExtraction(t *testing.T) {
	require.Equal(t, "example.com", trackerDomain("http://tracker.example.com:6969/announce"))
	require.Equal(t, "", trackerDomain(""))
}

func TestMergeOnceComputesETAAndNormalizes(t *testing.T) {
	it := &model.Item{Hash: "abc", Size: 100, SizeDownloaded: 50, DownloadSpeed: 10, Status: model.StatusDownloading}
	src := &fakeSource{client: model.ClientRTorrent, items: []*model.Item{it}}
	p := New([]Source{src}, nil, time.Hour)

	p.mergeOnce(context.Background())

	got, ok := p.Get("abc")
	require.True(t, ok)
	require.NotNil(t, got.ETA)
	require.Equal(t, int64(5), *got.ETA)
	require.Equal(t, float64(50), got.Progress)
}

func TestMergeOnceSkipsErroringSource(t *testing.T) {
	good := &model.Item{Hash: "ok", Size: 10, SizeDownloaded: 10, Status: model.StatusSeeding}
	srcGood := &fakeSource{client: model.ClientRTorrent, items: []*model.Item{good}}
	srcBad := &fakeSource{client: model.ClientAmule, err: context.DeadlineExceeded}
	p := New([]Source{srcGood, srcBad}, nil, time.Hour)

	p.mergeOnce(context.Background())
	require.Len(t, p.Items(), 1)
}

func TestItemsByCategoryFilters(t *testing.T) {
	a := &model.Item{Hash: "a", Category: "Movies", Size: 1, SizeDownloaded: 1}
	b := &model.Item{Hash: "b", Category: "Shows", Size: 1, SizeDownloaded: 1}
	src := &fakeSource{client: model.ClientRTorrent, items: []*model.Item{a, b}}
	p := New([]Source{src}, nil, time.Hour)
	p.mergeOnce(context.Background())

	require.Len(t, p.ItemsByCategory("Movies"), 1)
	require.Len(t, p.ItemsByCategory(""), 2)
}

type fakeCategoryResolver struct{}

func (fakeCategoryResolver) ResolveEd2kID(id int) string {
	if id == 1 {
		return "Movies"
	}
	return model.DefaultCategoryName
}

func (fakeCategoryResolver) ResolveLabel(label string) string {
	if label == "Shows" {
		return "Shows"
	}
	return model.DefaultCategoryName
}

func TestMergeOnceResolvesCategoryViaResolver(t *testing.T) {
	ed2kItem := &model.Item{Hash: "e1", Category: "1", Size: 1, SizeDownloaded: 1}
	ed2kUnknown := &model.Item{Hash: "e2", Category: "99", Size: 1, SizeDownloaded: 1}
	btItem := &model.Item{Hash: "b1", Category: "Shows", Size: 1, SizeDownloaded: 1}
	btUnknown := &model.Item{Hash: "b2", Category: "Ghost", Size: 1, SizeDownloaded: 1}

	srcEd2k := &fakeSource{client: model.ClientAmule, items: []*model.Item{ed2kItem, ed2kUnknown}}
	srcBT := &fakeSource{client: model.ClientRTorrent, items: []*model.Item{btItem, btUnknown}}
	p := New([]Source{srcEd2k, srcBT}, fakeCategoryResolver{}, time.Hour)
	p.mergeOnce(context.Background())

	got, _ := p.Get("e1")
	require.Equal(t, "Movies", got.Category)
	got, _ = p.Get("e2")
	require.Equal(t, model.DefaultCategoryName, got.Category)
	got, _ = p.Get("b1")
	require.Equal(t, "Shows", got.Category)
	got, _ = p.Get("b2")
	require.Equal(t, model.DefaultCategoryName, got.Category)
}
