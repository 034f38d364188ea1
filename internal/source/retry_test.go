package source

import (
	"Dyvine/internal/apperr"
	"Dyvine/model"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryingRecoversFromTransientFailure(t *testing.T) {
	f := NewFake()
	f.AddUser(model.UserProfile{UserID: "u1", Nickname: "ann"})
	f.FailUser("u1", apperr.New(apperr.RateLimited, "slow down"))
	r := NewRetrying(f, []time.Duration{time.Millisecond, time.Millisecond}, nil)

	p, err := r.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "ann", p.Nickname)
	assert.Equal(t, 2, f.UserCalls())
}

func TestRetryingGivesUpAfterDelays(t *testing.T) {
	f := NewFake()
	f.AddUser(model.UserProfile{UserID: "u1"})
	f.FailUser("u1",
		apperr.New(apperr.Upstream, "502"),
		apperr.New(apperr.Upstream, "502"),
		apperr.New(apperr.Upstream, "503"),
	)
	r := NewRetrying(f, []time.Duration{time.Millisecond, time.Millisecond}, nil)

	_, err := r.GetUser(context.Background(), "u1")
	assert.True(t, apperr.IsCode(err, apperr.Upstream))
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, 3, f.UserCalls())
}

func TestRetryingSkipsPermanentErrors(t *testing.T) {
	f := NewFake()
	r := NewRetrying(f, []time.Duration{time.Millisecond}, nil)

	_, err := r.GetUser(context.Background(), "ghost")
	assert.True(t, apperr.IsCode(err, apperr.NotFound))
	assert.Equal(t, 1, f.UserCalls())
}

func TestRetryingLiveRoomAndPost(t *testing.T) {
	f := NewFake()
	f.SetRoom("u1", model.LiveRoom{RoomID: "r1", LiveStatus: model.LiveStatusLive})
	f.FailRoom("u1", apperr.New(apperr.RateLimited, "slow down"))
	f.AddPosts("u1", model.ContentItem{ID: "p1"})
	f.FailPost("p1", apperr.New(apperr.Upstream, "timeout"))
	r := NewRetrying(f, []time.Duration{time.Millisecond}, nil)

	room, err := r.GetLiveRoom(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, room.IsLive())

	post, err := r.GetPost(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", post.ID)
}

func TestRetryingStopsOnCancel(t *testing.T) {
	f := NewFake()
	f.AddUser(model.UserProfile{UserID: "u1"})
	f.FailUser("u1", apperr.New(apperr.Upstream, "502"))
	r := NewRetrying(f, []time.Duration{time.Hour}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.GetUser(ctx, "u1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, f.UserCalls())
}
