package models

import "time"

type Post struct {
	ID       int    `gorm:"primaryKey" json:"id"`
	Title    string `gorm:"not null" json:"title"`
	Text     string `gorm:"not null" json:"text"`
	AuthorID int    `gorm:"not null;index" json:"author_id"`
	User     User   `gorm:"foreignKey:AuthorID" json:"user"`

	// Score is the denormalized sum of the post's vote ledger. It is
	// written only through the vote reconciler's atomic increment.
	Score int `gorm:"not null;default:0" json:"score"`

	// VoteStatus carries the requesting viewer's own vote value when a
	// feed query joins the ledger; it is not a stored column.
	VoteStatus *int `gorm:"-:migration;->" json:"vote_status"`

	CreatedAt time.Time `gorm:"index:idx_posts_created_at,sort:desc" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CreatePostRequest struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

type UpdatePostRequest struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

type PaginatedPosts struct {
	Posts   []Post `json:"posts"`
	HasMore bool   `json:"has_more"`
}
