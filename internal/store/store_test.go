package store

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/updootapp/backend/internal/models"
)

var testDB *gorm.DB

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("updoot_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		log.Fatalf("failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Fatalf("failed to get connection string: %v", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Fatalf("failed to connect to test database: %v", err)
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.Post{},
		&models.Vote{},
		&models.PasswordResetToken{},
	)
	if err != nil {
		log.Fatalf("failed to migrate test database: %v", err)
	}

	testDB = db

	code := m.Run()

	_ = container.Terminate(ctx)
	os.Exit(code)
}

func resetTables(t *testing.T) {
	t.Helper()
	err := testDB.Exec("TRUNCATE votes, posts, users, password_reset_tokens RESTART IDENTITY CASCADE").Error
	require.NoError(t, err)
}

func createUser(t *testing.T, username string) models.User {
	t.Helper()
	user := models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: "hashed",
	}
	require.NoError(t, testDB.Create(&user).Error)
	return user
}

func createPost(t *testing.T, authorID int, title string, createdAt time.Time) models.Post {
	t.Helper()
	post := models.Post{
		Title:     title,
		Text:      "some text for " + title,
		AuthorID:  authorID,
		CreatedAt: createdAt,
	}
	require.NoError(t, testDB.Create(&post).Error)
	return post
}

func postScore(t *testing.T, postID int) int {
	t.Helper()
	var post models.Post
	require.NoError(t, testDB.First(&post, postID).Error)
	return post.Score
}

func ledgerSum(t *testing.T, postID int) int {
	t.Helper()
	var sum int
	err := testDB.Raw("SELECT COALESCE(SUM(value), 0) FROM votes WHERE post_id = ?", postID).Scan(&sum).Error
	require.NoError(t, err)
	return sum
}

func ledgerCount(t *testing.T, userID, postID int) int64 {
	t.Helper()
	var count int64
	err := testDB.Model(&models.Vote{}).
		Where("user_id = ? AND post_id = ?", userID, postID).
		Count(&count).Error
	require.NoError(t, err)
	return count
}

func TestNormalizeVote(t *testing.T) {
	assert.Equal(t, Upvote, NormalizeVote(1))
	assert.Equal(t, Downvote, NormalizeVote(-1))
	assert.Equal(t, Upvote, NormalizeVote(0))
	assert.Equal(t, Upvote, NormalizeVote(5))
	assert.Equal(t, Upvote, NormalizeVote(-7))
}

func TestApplyVoteFirstVote(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	s := NewPostStore(testDB)

	author := createUser(t, "author")
	voter := createUser(t, "voter")
	post := createPost(t, author.ID, "first vote", time.Now())

	require.NoError(t, s.ApplyVote(ctx, voter.ID, post.ID, 1))

	assert.Equal(t, 1, postScore(t, post.ID))

	var vote models.Vote
	require.NoError(t, testDB.Where("user_id = ? AND post_id = ?", voter.ID, post.ID).Take(&vote).Error)
	assert.Equal(t, 1, vote.Value)
}

func TestApplyVoteSameDirectionIsIdempotent(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	s := NewPostStore(testDB)

	author := createUser(t, "author")
	voter := createUser(t, "voter")
	post := createPost(t, author.ID, "idempotent", time.Now())

	require.NoError(t, s.ApplyVote(ctx, voter.ID, post.ID, 1))
	require.NoError(t, s.ApplyVote(ctx, voter.ID, post.ID, 1))

	assert.Equal(t, 1, postScore(t, post.ID), "repeat vote must not double-count")
	assert.EqualValues(t, 1, ledgerCount(t, voter.ID, post.ID))
}

func TestApplyVoteFlip(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	s := NewPostStore(testDB)

	author := createUser(t, "author")
	voter := createUser(t, "voter")
	post := createPost(t, author.ID, "flip", time.Now())

	require.NoError(t, s.ApplyVote(ctx, voter.ID, post.ID, 1))
	scoreAfterUp := postScore(t, post.ID)

	require.NoError(t, s.ApplyVote(ctx, voter.ID, post.ID, -1))

	// The flip removes the old +1 and adds the new -1 in one move.
	assert.Equal(t, scoreAfterUp-2, postScore(t, post.ID))
	assert.Equal(t, -1, postScore(t, post.ID))

	var vote models.Vote
	require.NoError(t, testDB.Where("user_id = ? AND post_id = ?", voter.ID, post.ID).Take(&vote).Error)
	assert.Equal(t, -1, vote.Value)
	assert.EqualValues(t, 1, ledgerCount(t, voter.ID, post.ID))
}

func TestApplyVoteNormalizesRawValues(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	s := NewPostStore(testDB)

	author := createUser(t, "author")
	voter := createUser(t, "voter")
	post := createPost(t, author.ID, "normalize", time.Now())

	// Anything but a literal -1 is an upvote.
	require.NoError(t, s.ApplyVote(ctx, voter.ID, post.ID, 7))

	var vote models.Vote
	require.NoError(t, testDB.Where("user_id = ? AND post_id = ?", voter.ID, post.ID).Take(&vote).Error)
	assert.Equal(t, 1, vote.Value)
	assert.Equal(t, 1, postScore(t, post.ID))

	// 0 normalizes to +1 as well, which is now a same-direction no-op.
	require.NoError(t, s.ApplyVote(ctx, voter.ID, post.ID, 0))
	assert.Equal(t, 1, postScore(t, post.ID))
}

func TestApplyVoteAggregateStaysConsistent(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	s := NewPostStore(testDB)

	author := createUser(t, "author")
	post := createPost(t, author.ID, "consistency", time.Now())

	voters := []models.User{
		createUser(t, "alice"),
		createUser(t, "bob"),
		createUser(t, "carol"),
	}

	sequence := []struct {
		voter int
		value int
	}{
		{0, 1}, {1, -1}, {2, 1}, {0, -1}, {1, -1}, {2, -1}, {0, -1}, {1, 1},
	}

	for _, step := range sequence {
		require.NoError(t, s.ApplyVote(ctx, voters[step.voter].ID, post.ID, step.value))
		assert.Equal(t, ledgerSum(t, post.ID), postScore(t, post.ID),
			"score must always equal the ledger sum")
	}

	var count int64
	require.NoError(t, testDB.Model(&models.Vote{}).Where("post_id = ?", post.ID).Count(&count).Error)
	assert.EqualValues(t, len(voters), count, "at most one ledger row per voter")
}

func TestApplyVoteMissingPost(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	s := NewPostStore(testDB)

	voter := createUser(t, "voter")

	err := s.ApplyVote(ctx, voter.ID, 99999, 1)
	assert.ErrorIs(t, err, ErrPostNotFound)

	var count int64
	require.NoError(t, testDB.Model(&models.Vote{}).Count(&count).Error)
	assert.EqualValues(t, 0, count, "failed vote must leave no ledger row")
}

func seedFeed(t *testing.T, authorID, n int) []models.Post {
	t.Helper()
	base := time.Now().Add(-24 * time.Hour).Truncate(time.Millisecond)
	posts := make([]models.Post, 0, n)
	for i := 0; i < n; i++ {
		posts = append(posts, createPost(t, authorID,
			fmt.Sprintf("post %d", i), base.Add(time.Duration(i)*time.Minute)))
	}
	return posts
}

func TestListPostsSentinel(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	s := NewPostStore(testDB)
	author := createUser(t, "author")

	t.Run("51 posts, limit 50", func(t *testing.T) {
		seedFeed(t, author.ID, 51)

		page, err := s.ListPosts(ctx, 50, nil, nil)
		require.NoError(t, err)
		assert.Len(t, page.Posts, 50)
		assert.True(t, page.HasMore)
	})

	t.Run("50 posts, limit 50", func(t *testing.T) {
		resetTables(t)
		author := createUser(t, "author")
		seedFeed(t, author.ID, 50)

		page, err := s.ListPosts(ctx, 50, nil, nil)
		require.NoError(t, err)
		assert.Len(t, page.Posts, 50)
		assert.False(t, page.HasMore)
	})
}

func TestListPostsClampsLimit(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	s := NewPostStore(testDB)
	author := createUser(t, "author")
	seedFeed(t, author.ID, 60)

	page, err := s.ListPosts(ctx, 500, nil, nil)
	require.NoError(t, err)
	assert.Len(t, page.Posts, MaxPageSize)
	assert.True(t, page.HasMore)
}

func TestListPostsOrderAndCursor(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	s := NewPostStore(testDB)
	author := createUser(t, "author")
	seedFeed(t, author.ID, 30)

	page1, err := s.ListPosts(ctx, 10, nil, nil)
	require.NoError(t, err)
	require.Len(t, page1.Posts, 10)
	assert.True(t, page1.HasMore)

	// Newest first
	for i := 1; i < len(page1.Posts); i++ {
		assert.True(t, page1.Posts[i].CreatedAt.Before(page1.Posts[i-1].CreatedAt))
	}

	cursor := page1.Posts[len(page1.Posts)-1].CreatedAt
	page2, err := s.ListPosts(ctx, 10, &cursor, nil)
	require.NoError(t, err)
	require.Len(t, page2.Posts, 10)

	seen := make(map[int]bool)
	for _, p := range page1.Posts {
		seen[p.ID] = true
	}
	for _, p := range page2.Posts {
		assert.False(t, seen[p.ID], "pages must not overlap")
		assert.True(t, p.CreatedAt.Before(cursor), "cursor bound must be strict")
	}
}

func TestListPostsVoteStatus(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	s := NewPostStore(testDB)

	author := createUser(t, "author")
	viewer := createUser(t, "viewer")
	stranger := createUser(t, "stranger")
	posts := seedFeed(t, author.ID, 3)

	require.NoError(t, s.ApplyVote(ctx, viewer.ID, posts[0].ID, -1))
	require.NoError(t, s.ApplyVote(ctx, stranger.ID, posts[1].ID, 1))

	page, err := s.ListPosts(ctx, 10, nil, &viewer.ID)
	require.NoError(t, err)
	require.Len(t, page.Posts, 3)

	byID := make(map[int]models.Post)
	for _, p := range page.Posts {
		byID[p.ID] = p
	}

	require.NotNil(t, byID[posts[0].ID].VoteStatus)
	assert.Equal(t, -1, *byID[posts[0].ID].VoteStatus)
	assert.Nil(t, byID[posts[1].ID].VoteStatus, "someone else's vote must not leak")
	assert.Nil(t, byID[posts[2].ID].VoteStatus)

	// Anonymous requests never carry a vote status.
	anon, err := s.ListPosts(ctx, 10, nil, nil)
	require.NoError(t, err)
	for _, p := range anon.Posts {
		assert.Nil(t, p.VoteStatus)
	}

	// Author comes along with each post.
	assert.Equal(t, author.Username, byID[posts[0].ID].User.Username)
}

func TestCreatePostValidation(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	s := NewPostStore(testDB)
	author := createUser(t, "author")

	post, fieldErrs, err := s.CreatePost(ctx, author.ID, models.CreatePostRequest{Title: "ab", Text: "abcd"})
	require.NoError(t, err)
	assert.Nil(t, post)
	require.Len(t, fieldErrs, 1)
	assert.Equal(t, "title", fieldErrs[0].Field)

	post, fieldErrs, err = s.CreatePost(ctx, author.ID, models.CreatePostRequest{Title: "abcd", Text: "ab"})
	require.NoError(t, err)
	assert.Nil(t, post)
	require.Len(t, fieldErrs, 1)
	assert.Equal(t, "text", fieldErrs[0].Field)

	post, fieldErrs, err = s.CreatePost(ctx, author.ID, models.CreatePostRequest{Title: "hello", Text: "world..."})
	require.NoError(t, err)
	require.Nil(t, fieldErrs)
	require.NotNil(t, post)
	assert.Equal(t, 0, post.Score)
	assert.Equal(t, author.ID, post.AuthorID)
	assert.Equal(t, author.Username, post.User.Username)
}

func TestUpdatePostAuthorScoped(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	s := NewPostStore(testDB)

	author := createUser(t, "author")
	other := createUser(t, "other")
	post := createPost(t, author.ID, "original title", time.Now())

	_, err := s.UpdatePost(ctx, post.ID, other.ID, models.UpdatePostRequest{Title: "hijacked"})
	assert.ErrorIs(t, err, ErrPostNotFound)

	var unchanged models.Post
	require.NoError(t, testDB.First(&unchanged, post.ID).Error)
	assert.Equal(t, "original title", unchanged.Title)

	updated, err := s.UpdatePost(ctx, post.ID, author.ID, models.UpdatePostRequest{Title: "new title"})
	require.NoError(t, err)
	assert.Equal(t, "new title", updated.Title)

	_, err = s.UpdatePost(ctx, 99999, author.ID, models.UpdatePostRequest{Title: "ghost"})
	assert.ErrorIs(t, err, ErrPostNotFound)
}

func TestDeletePostCascadesLedger(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	s := NewPostStore(testDB)

	author := createUser(t, "author")
	voter := createUser(t, "voter")
	post := createPost(t, author.ID, "doomed", time.Now())

	require.NoError(t, s.ApplyVote(ctx, voter.ID, post.ID, 1))

	deleted, err := s.DeletePost(ctx, post.ID, voter.ID)
	require.NoError(t, err)
	assert.False(t, deleted, "only the author can delete")

	deleted, err = s.DeletePost(ctx, post.ID, author.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	var votes int64
	require.NoError(t, testDB.Model(&models.Vote{}).Where("post_id = ?", post.ID).Count(&votes).Error)
	assert.EqualValues(t, 0, votes, "ledger rows must go with the post")
}

func TestGetPost(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	s := NewPostStore(testDB)

	author := createUser(t, "author")
	post := createPost(t, author.ID, "findable", time.Now())

	found, err := s.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, post.ID, found.ID)
	assert.Equal(t, author.Username, found.User.Username)

	_, err = s.GetPost(ctx, 99999)
	assert.ErrorIs(t, err, ErrPostNotFound)
}
