package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		item ContentItem
		want Category
	}{
		{"video", ContentItem{VideoURL: "v"}, CategoryVideo},
		{"images", ContentItem{ImageURLs: []string{"a", "b"}}, CategoryImages},
		{"mixed", ContentItem{VideoURL: "v", ImageURLs: []string{"a"}}, CategoryMixed},
		{"live replay", ContentItem{AwemeType: 1, VideoURL: "v"}, CategoryLive},
		{"collection", ContentItem{AwemeType: 3, VideoURL: "v"}, CategoryCollection},
		{"story", ContentItem{AwemeType: 4, ImageURLs: []string{"a"}}, CategoryStory},
		{"blank image urls", ContentItem{ImageURLs: []string{" ", ""}}, CategoryUnknown},
		{"empty", ContentItem{}, CategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.item).Category())
		})
	}
}

func TestContentMediaOrder(t *testing.T) {
	c := Classify(ContentItem{VideoURL: "v", ImageURLs: []string{"a", "b"}})
	assert.Equal(t, []MediaRef{
		{URL: "a", Kind: MediaImage},
		{URL: "b", Kind: MediaImage},
		{URL: "v", Kind: MediaVideo},
	}, c.Media())
	assert.Empty(t, Unknown{}.Media())
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusRunning))
	assert.True(t, CanTransition(StatusPending, StatusFailed))
	assert.True(t, CanTransition(StatusRunning, StatusRunning))
	assert.True(t, CanTransition(StatusRunning, StatusPartialSuccess))
	assert.False(t, CanTransition(StatusPending, StatusSuccess))
	assert.False(t, CanTransition(StatusSuccess, StatusSuccess))
	assert.False(t, CanTransition(StatusFailed, StatusRunning))
}

func TestOperationCloneIsDeep(t *testing.T) {
	total := 3
	op := Operation{
		ID:         "op",
		Counts:     NewCounts(),
		TotalItems: &total,
		Error:      &OperationError{Code: "X"},
		ItemErrors: []ItemError{{Index: 1, ItemID: "a"}},
	}
	cp := op.Clone()
	cp.Counts[CategoryVideo] = 9
	*cp.TotalItems = 10
	cp.Error.Code = "Y"
	cp.ItemErrors[0].ItemID = "b"

	require.Len(t, op.Counts, len(Categories))
	assert.Equal(t, 0, op.Counts[CategoryVideo])
	assert.Equal(t, 3, *op.TotalItems)
	assert.Equal(t, "X", op.Error.Code)
	assert.Equal(t, "a", op.ItemErrors[0].ItemID)
	assert.Equal(t, 9, cp.CountSum())
}

func TestLiveRoomPickQuality(t *testing.T) {
	room := LiveRoom{
		LiveStatus: LiveStatusLive,
		HLSPullURL: map[string]string{"SD1": "sd", "HD1": "hd"},
		FLVPullURL: map[string]string{"custom": "x"},
	}
	assert.True(t, room.IsLive())
	assert.Equal(t, "hd", room.BestHLS())
	assert.Equal(t, "x", room.BestFLV())
	assert.Equal(t, "", LiveRoom{}.BestHLS())
}
