package models

import "time"

// Vote is the ledger of individual user votes on posts: at most one
// row per (user, post) pair, value restricted to +1 or -1. Rows are
// never deleted by voting itself, only flipped in place; deleting a
// post cascades over its ledger.
type Vote struct {
	UserID int `gorm:"primaryKey" json:"user_id"`
	PostID int `gorm:"primaryKey" json:"post_id"`
	Value  int `gorm:"not null;check:value IN (-1, 1)" json:"value"`

	Post Post `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type VoteRequest struct {
	Value int `json:"value"`
}
