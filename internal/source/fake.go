package source

import (
	"Dyvine/internal/apperr"
	"Dyvine/model"
	"context"
	"strconv"
	"sync"
)

// Fake is an in-memory Source. Cursors are decimal offsets into the feed.
type Fake struct {
	mu         sync.Mutex
	users      map[string]model.UserProfile
	posts      map[string][]model.ContentItem
	likes      map[string][]model.ContentItem
	rooms      map[string]model.LiveRoom
	listErrs   map[string][]error
	postErrs   map[string][]error
	userErrs   map[string][]error
	roomErrs   map[string][]error
	userCalls  int
	pageCalls  int
	countsSeen []int
}

// NewFake returns an empty fake source.
func NewFake() *Fake {
	return &Fake{
		users:    map[string]model.UserProfile{},
		posts:    map[string][]model.ContentItem{},
		likes:    map[string][]model.ContentItem{},
		rooms:    map[string]model.LiveRoom{},
		listErrs: map[string][]error{},
		postErrs: map[string][]error{},
		userErrs: map[string][]error{},
		roomErrs: map[string][]error{},
	}
}

// AddUser registers a profile.
func (f *Fake) AddUser(p model.UserProfile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[p.UserID] = p
}

// AddPosts appends posts to a user's feed, newest first.
func (f *Fake) AddPosts(userID string, items ...model.ContentItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureUser(userID)
	f.posts[userID] = append(f.posts[userID], items...)
}

// AddLikes appends posts to a user's liked feed.
func (f *Fake) AddLikes(userID string, items ...model.ContentItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureUser(userID)
	f.likes[userID] = append(f.likes[userID], items...)
}

// SetRoom registers a user's live room.
func (f *Fake) SetRoom(userID string, room model.LiveRoom) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensureUser(userID)
	room.UserID = userID
	f.rooms[userID] = room
}

// FailListing queues errors returned, in order, by listing calls made with cursor.
func (f *Fake) FailListing(cursor string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErrs[cursor] = append(f.listErrs[cursor], errs...)
}

// FailPost queues errors returned, in order, by GetPost for postID.
func (f *Fake) FailPost(postID string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.postErrs[postID] = append(f.postErrs[postID], errs...)
}

// FailUser queues errors returned, in order, by GetUser for userID.
func (f *Fake) FailUser(userID string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userErrs[userID] = append(f.userErrs[userID], errs...)
}

// FailRoom queues errors returned, in order, by GetLiveRoom for userID.
func (f *Fake) FailRoom(userID string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roomErrs[userID] = append(f.roomErrs[userID], errs...)
}

// UserCalls returns how many profile lookups were made.
func (f *Fake) UserCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userCalls
}

// PageCalls returns how many listing calls were made.
func (f *Fake) PageCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pageCalls
}

// PageSizes returns the count argument of every listing call.
func (f *Fake) PageSizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.countsSeen...)
}

func (f *Fake) ensureUser(userID string) {
	if _, ok := f.users[userID]; !ok {
		f.users[userID] = model.UserProfile{UserID: userID, Nickname: userID}
	}
}

func (f *Fake) GetUser(ctx context.Context, userID string) (model.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userCalls++
	if errs := f.userErrs[userID]; len(errs) > 0 {
		f.userErrs[userID] = errs[1:]
		return model.UserProfile{}, errs[0]
	}
	p, ok := f.users[userID]
	if !ok {
		return model.UserProfile{}, apperr.Newf(apperr.NotFound, "user %s not found", userID)
	}
	p.PostCount = int64(len(f.posts[userID]))
	if room, ok := f.rooms[userID]; ok && room.IsLive() {
		p.IsLiving = true
		p.RoomID = room.RoomID
	}
	return p, nil
}

func (f *Fake) ListPosts(ctx context.Context, userID, cursor string, count int) (model.Page, error) {
	return f.list(ctx, f.posts, userID, cursor, count)
}

func (f *Fake) ListLikes(ctx context.Context, userID, cursor string, count int) (model.Page, error) {
	return f.list(ctx, f.likes, userID, cursor, count)
}

func (f *Fake) list(ctx context.Context, feed map[string][]model.ContentItem, userID, cursor string, count int) (model.Page, error) {
	if err := ctx.Err(); err != nil {
		return model.Page{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageCalls++
	f.countsSeen = append(f.countsSeen, count)
	if errs := f.listErrs[cursor]; len(errs) > 0 {
		f.listErrs[cursor] = errs[1:]
		return model.Page{}, errs[0]
	}
	if _, ok := f.users[userID]; !ok {
		return model.Page{}, apperr.Newf(apperr.NotFound, "user %s not found", userID)
	}
	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return model.Page{}, apperr.Newf(apperr.Validation, "invalid cursor %q", cursor)
		}
		offset = n
	}
	items := feed[userID]
	if offset > len(items) {
		offset = len(items)
	}
	end := offset + count
	if count <= 0 || end > len(items) {
		end = len(items)
	}
	page := model.Page{
		Items:      append([]model.ContentItem(nil), items[offset:end]...),
		NextCursor: strconv.Itoa(end),
		HasMore:    end < len(items),
	}
	return page, nil
}

func (f *Fake) GetPost(ctx context.Context, postID string) (model.ContentItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if errs := f.postErrs[postID]; len(errs) > 0 {
		f.postErrs[postID] = errs[1:]
		return model.ContentItem{}, errs[0]
	}
	for _, feed := range []map[string][]model.ContentItem{f.posts, f.likes} {
		for _, items := range feed {
			for _, item := range items {
				if item.ID == postID {
					return item, nil
				}
			}
		}
	}
	return model.ContentItem{}, apperr.Newf(apperr.NotFound, "post %s not found", postID)
}

func (f *Fake) GetLiveRoom(ctx context.Context, userID string) (model.LiveRoom, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if errs := f.roomErrs[userID]; len(errs) > 0 {
		f.roomErrs[userID] = errs[1:]
		return model.LiveRoom{}, errs[0]
	}
	room, ok := f.rooms[userID]
	if !ok {
		if _, known := f.users[userID]; !known {
			return model.LiveRoom{}, apperr.Newf(apperr.NotFound, "user %s not found", userID)
		}
		return model.LiveRoom{UserID: userID}, nil
	}
	return room, nil
}
