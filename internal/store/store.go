// Package store holds the data-access core of the board: the vote
// reconciler that keeps each post's denormalized score in lockstep
// with the vote ledger, and the cursor-paginated feed that annotates
// posts with the viewer's own vote. Handlers stay thin on top of it.
package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/updootapp/backend/internal/models"
)

const (
	Upvote   = 1
	Downvote = -1

	// MaxPageSize caps a single feed page; larger requests are
	// silently clamped, not rejected.
	MaxPageSize = 50
)

// ErrPostNotFound is returned when an operation targets a post that
// does not exist, or that the caller is not allowed to touch (author
// scoped updates surface both the same way).
var ErrPostNotFound = errors.New("post not found")

type PostStore struct {
	db *gorm.DB
}

func NewPostStore(db *gorm.DB) *PostStore {
	return &PostStore{db: db}
}

// NormalizeVote collapses an arbitrary vote value to its sign: only a
// literal -1 counts as a downvote, everything else becomes +1.
func NormalizeVote(raw int) int {
	if raw == Downvote {
		return Downvote
	}
	return Upvote
}

// ApplyVote records viewerID's vote on postID and folds it into the
// post's score, all inside one transaction. A repeat of the same
// direction is a no-op; an opposite vote flips the ledger row in place
// and moves the score by twice the new value (the old contribution is
// removed and the new one added in a single step).
func (s *PostStore) ApplyVote(ctx context.Context, viewerID, postID, rawValue int) error {
	value := NormalizeVote(rawValue)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Vote
		err := tx.Where("user_id = ? AND post_id = ?", viewerID, postID).
			Take(&existing).Error

		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			// First vote: bump the score before inserting the ledger
			// row. The conditional update doubles as the existence
			// check (zero rows affected means no such post) and locks
			// the post row for the rest of the transaction.
			if err := s.bumpScore(tx, postID, value); err != nil {
				return err
			}
			vote := models.Vote{UserID: viewerID, PostID: postID, Value: value}
			return tx.Create(&vote).Error

		case err != nil:
			return err

		case existing.Value == value:
			// Same direction again: nothing to do.
			return nil

		default:
			// Opposite direction: flip the ledger row and move the
			// score by 2*value. The flip is conditional on the old
			// value so a racing flip that got there first turns this
			// one into a no-op instead of a second ±2 delta.
			res := tx.Model(&models.Vote{}).
				Where("user_id = ? AND post_id = ? AND value <> ?", viewerID, postID, value).
				Update("value", value)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return nil
			}
			return s.bumpScore(tx, postID, 2*value)
		}
	})
}

// bumpScore applies a delta to the post's aggregate with an atomic
// increment expression. The counter is never read back and written
// from application code, so concurrent voters cannot lose updates.
func (s *PostStore) bumpScore(tx *gorm.DB, postID, delta int) error {
	res := tx.Model(&models.Post{}).
		Where("id = ?", postID).
		UpdateColumn("score", gorm.Expr("score + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrPostNotFound
	}
	return nil
}

// ListPosts returns one feed page ordered by creation time descending.
// The cursor, when set, bounds results to strictly earlier posts. One
// row beyond the page size is fetched so HasMore comes out of the same
// query; the extra row is trimmed from the response. When viewerID is
// set, each post carries that viewer's ledger value as VoteStatus.
func (s *PostStore) ListPosts(ctx context.Context, limit int, cursor *time.Time, viewerID *int) (models.PaginatedPosts, error) {
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if limit < 1 {
		limit = 1
	}

	q := s.db.WithContext(ctx).
		Model(&models.Post{}).
		Preload("User").
		Order("posts.created_at DESC, posts.id DESC").
		Limit(limit + 1)

	if viewerID != nil {
		q = q.Select("posts.*, v.value AS vote_status").
			Joins("LEFT JOIN votes v ON v.post_id = posts.id AND v.user_id = ?", *viewerID)
	}
	if cursor != nil {
		q = q.Where("posts.created_at < ?", *cursor)
	}

	var posts []models.Post
	if err := q.Find(&posts).Error; err != nil {
		return models.PaginatedPosts{}, err
	}

	hasMore := len(posts) == limit+1
	if hasMore {
		posts = posts[:limit]
	}
	if posts == nil {
		posts = []models.Post{}
	}

	return models.PaginatedPosts{Posts: posts, HasMore: hasMore}, nil
}

// GetPost fetches a single post with its author.
func (s *PostStore) GetPost(ctx context.Context, id int) (*models.Post, error) {
	var post models.Post
	err := s.db.WithContext(ctx).Preload("User").First(&post, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// CreatePost validates and stores a new post owned by authorID.
// Validation failures come back as field-tagged errors, not as a Go
// error, so the caller can report them per field.
func (s *PostStore) CreatePost(ctx context.Context, authorID int, req models.CreatePostRequest) (*models.Post, []models.FieldError, error) {
	var fieldErrs []models.FieldError
	if len(req.Title) <= 3 {
		fieldErrs = append(fieldErrs, models.FieldError{Field: "title", Message: "Length should be greater than 3"})
	}
	if len(req.Text) <= 3 {
		fieldErrs = append(fieldErrs, models.FieldError{Field: "text", Message: "Length should be greater than 3"})
	}
	if fieldErrs != nil {
		return nil, fieldErrs, nil
	}

	post := models.Post{
		Title:    req.Title,
		Text:     req.Text,
		AuthorID: authorID,
	}
	if err := s.db.WithContext(ctx).Create(&post).Error; err != nil {
		return nil, nil, err
	}

	// Reload with author information
	if err := s.db.WithContext(ctx).Preload("User").First(&post, post.ID).Error; err != nil {
		return nil, nil, err
	}
	return &post, nil, nil
}

// UpdatePost edits a post's title and text. The update is scoped to
// the author in the WHERE clause, so a missing post and somebody
// else's post both come back as ErrPostNotFound.
func (s *PostStore) UpdatePost(ctx context.Context, id, authorID int, req models.UpdatePostRequest) (*models.Post, error) {
	updates := map[string]interface{}{}
	if req.Title != "" {
		updates["title"] = req.Title
	}
	if req.Text != "" {
		updates["text"] = req.Text
	}

	if len(updates) > 0 {
		res := s.db.WithContext(ctx).Model(&models.Post{}).
			Where("id = ? AND author_id = ?", id, authorID).
			Updates(updates)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, ErrPostNotFound
		}
	}

	return s.GetPost(ctx, id)
}

// DeletePost removes a post owned by authorID. Ledger rows go with it
// through the cascade on votes.post_id. Returns false when nothing
// was deleted (missing post or not the author).
func (s *PostStore) DeletePost(ctx context.Context, id, authorID int) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("id = ? AND author_id = ?", id, authorID).
		Delete(&models.Post{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// PostsByAuthor lists a user's posts, newest first.
func (s *PostStore) PostsByAuthor(ctx context.Context, authorID int) ([]models.Post, error) {
	var posts []models.Post
	err := s.db.WithContext(ctx).
		Preload("User").
		Where("author_id = ?", authorID).
		Order("created_at DESC, id DESC").
		Find(&posts).Error
	if err != nil {
		return nil, err
	}
	if posts == nil {
		posts = []models.Post{}
	}
	return posts, nil
}
