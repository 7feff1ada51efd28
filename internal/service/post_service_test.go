package service

import (
	"context"
	"testing"
	"time"

	"sccompanion/internal/events"
	"sccompanion/internal/models"
	"sccompanion/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reloadXP(t *testing.T, h *harness, id uint) int64 {
	t.Helper()
	u, err := h.store.Users.GetByID(context.Background(), id)
	require.NoError(t, err)
	return u.XP
}

func TestPostService_CreateAwardsXP(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	alice := testutil.MakeUser(t, h.db)

	post, err := h.posts.Create(ctx, alice.ID, CreatePostInput{
		Content:   "  Quantum jump to Crusader  ",
		MediaURLs: []string{"https://cdn.example.com/shot.webp"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Quantum jump to Crusader", post.Content)
	assert.Equal(t, []string{"https://cdn.example.com/shot.webp"}, post.MediaURLs)
	require.NotNil(t, post.Author)
	assert.Equal(t, alice.Handle, post.Author.Handle)
	assert.Equal(t, models.XPPostCreated, reloadXP(t, h, alice.ID))
	assert.Contains(t, h.events.types(), events.PostCreated)

	_, err = h.posts.Create(ctx, alice.ID, CreatePostInput{Content: "   "})
	assert.True(t, models.IsCode(err, models.CodeValidation))

	banned := testutil.MakeUser(t, h.db, func(u *models.User) { u.IsBanned = true })
	_, err = h.posts.Create(ctx, banned.ID, CreatePostInput{Content: "hello"})
	require.Error(t, err)
	assert.Equal(t, 403, models.StatusFor(err))
}

func TestPostService_FeedPagination(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	alice := testutil.MakeUser(t, h.db)

	base := time.Now().UTC().Add(-time.Hour)
	var ids []uint
	for i := 0; i < 5; i++ {
		p := testutil.MakePost(t, h.db, alice.ID, base.Add(time.Duration(i)*time.Minute))
		ids = append(ids, p.ID)
	}

	var seen []uint
	var sizes []int
	cursor := ""
	for {
		req, err := models.NewPageRequest(cursor, 2)
		require.NoError(t, err)
		page, err := h.posts.Feed(ctx, alice.ID, req)
		require.NoError(t, err)
		sizes = append(sizes, len(page.Data))
		for _, p := range page.Data {
			seen = append(seen, p.ID)
		}
		if !page.Pagination.HasNext {
			break
		}
		cursor = page.Pagination.NextCursor
	}

	assert.Equal(t, []int{2, 2, 1}, sizes)
	assert.Equal(t, []uint{ids[4], ids[3], ids[2], ids[1], ids[0]}, seen)
}

func TestPostService_LikeUnlike(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	author := testutil.MakeUser(t, h.db)
	fan := testutil.MakeUser(t, h.db)
	post := testutil.MakePost(t, h.db, author.ID, time.Now().UTC())

	res, err := h.posts.Like(ctx, fan.ID, post.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, int64(1), res.LikesCount)
	assert.Equal(t, models.XPLikeReceived, reloadXP(t, h, author.ID))

	_, err = h.posts.Like(ctx, fan.ID, post.ID)
	require.Error(t, err)
	assert.Equal(t, 409, models.StatusFor(err))

	got, err := h.posts.Get(ctx, post.ID, fan.ID)
	require.NoError(t, err)
	assert.True(t, got.IsLiked)
	assert.Equal(t, int64(1), got.LikesCount)

	res, err = h.posts.Like(ctx, author.ID, post.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.LikesCount)
	assert.Equal(t, models.XPLikeReceived, reloadXP(t, h, author.ID), "self-like earns nothing")

	res, err = h.posts.Unlike(ctx, fan.ID, post.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.LikesCount)

	_, err = h.posts.Unlike(ctx, fan.ID, post.ID)
	require.Error(t, err)
	assert.Equal(t, 404, models.StatusFor(err))

	_, err = h.posts.Like(ctx, fan.ID, 99999)
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}

func TestPostService_UpdateAndDelete(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	author := testutil.MakeUser(t, h.db)
	other := testutil.MakeUser(t, h.db)
	mod := testutil.MakeUser(t, h.db, withRole(models.RoleModerator))
	post := testutil.MakePost(t, h.db, author.ID, time.Now().UTC())

	content := "Edited"
	_, err := h.posts.Update(ctx, post.ID, other.ID, UpdatePostInput{Content: &content})
	require.Error(t, err)
	assert.Equal(t, "You can only edit your own posts", err.Error())

	updated, err := h.posts.Update(ctx, post.ID, author.ID, UpdatePostInput{
		Content:   &content,
		MediaURLs: []string{"https://cdn.example.com/a.png"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Edited", updated.Content)
	assert.Equal(t, []string{"https://cdn.example.com/a.png"}, updated.MediaURLs)

	err = h.posts.Delete(ctx, post.ID, other.ID)
	require.Error(t, err)
	assert.Equal(t, "You can only delete your own posts", err.Error())

	require.NoError(t, h.posts.Delete(ctx, post.ID, mod.ID))
	_, err = h.posts.Get(ctx, post.ID, 0)
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}

func TestPostService_Moderate(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	author := testutil.MakeUser(t, h.db)
	modAuthor := testutil.MakeUser(t, h.db, withRole(models.RoleModerator))
	mod := testutil.MakeUser(t, h.db, withRole(models.RoleModerator))
	post := testutil.MakePost(t, h.db, author.ID, time.Now().UTC())
	staffPost := testutil.MakePost(t, h.db, modAuthor.ID, time.Now().UTC())

	_, err := h.posts.Moderate(ctx, mod.ID, 99999, ModerateInput{Reason: "spam"})
	require.Error(t, err)
	assert.Equal(t, "User or post not found", err.Error())

	_, err = h.posts.Moderate(ctx, mod.ID, staffPost.ID, ModerateInput{Reason: "spam"})
	require.Error(t, err)
	assert.Equal(t, "Insufficient permissions to moderate this post", err.Error())

	moderated, err := h.posts.Moderate(ctx, mod.ID, post.ID, ModerateInput{Reason: "spam"})
	require.NoError(t, err)
	assert.True(t, moderated.IsModerated)
	require.NotNil(t, moderated.ModeratedBy)
	assert.Equal(t, mod.ID, *moderated.ModeratedBy)

	_, err = h.posts.Moderate(ctx, mod.ID, post.ID, ModerateInput{Reason: "spam"})
	require.Error(t, err)
	assert.Equal(t, "Post is already moderated", err.Error())

	_, err = h.posts.Get(ctx, post.ID, 0)
	assert.True(t, models.IsCode(err, models.CodeNotFound))

	edited := "rewritten after takedown"
	_, err = h.posts.Update(ctx, post.ID, author.ID, UpdatePostInput{Content: &edited})
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.CodeForbidden))
	assert.Equal(t, "Moderated posts cannot be edited", err.Error())
	var stored models.Post
	require.NoError(t, h.db.First(&stored, post.ID).Error)
	assert.NotEqual(t, edited, stored.Content)

	req, err := models.NewPageRequest("", 10)
	require.NoError(t, err)
	feed, err := h.posts.Feed(ctx, 0, req)
	require.NoError(t, err)
	require.Len(t, feed.Data, 1)
	assert.Equal(t, staffPost.ID, feed.Data[0].ID)
}

func TestPostService_ListByUser(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	alice := testutil.MakeUser(t, h.db)
	bob := testutil.MakeUser(t, h.db)
	testutil.MakePost(t, h.db, alice.ID, time.Now().UTC())
	testutil.MakePost(t, h.db, bob.ID, time.Now().UTC())

	req, err := models.NewPageRequest("", 0)
	require.NoError(t, err)
	page, err := h.posts.ListByUser(ctx, alice.ID, 0, req)
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, alice.ID, page.Data[0].UserID)
	assert.False(t, page.Pagination.HasNext)

	_, err = h.posts.ListByUser(ctx, 99999, 0, req)
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}
