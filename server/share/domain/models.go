// Package domain holds the entities of the note-share relay.
package domain

import "time"

const (
	MaxTitleLength    = 255
	SearchLimit       = 20
	MinSearchQueryLen = 2
	MaxPhoneBatch     = 500
	MaxRecipients     = 100
)

type User struct {
	ID        int64     `json:"id"`
	DeviceID  string    `json:"deviceId"`
	Username  *string   `json:"username"`
	Phone     *string   `json:"phone"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PublicUser is what other users may see about someone.
type PublicUser struct {
	ID       int64   `json:"id"`
	Username *string `json:"username"`
	Phone    *string `json:"phone"`
}

func (u User) Public() PublicUser {
	return PublicUser{ID: u.ID, Username: u.Username, Phone: u.Phone}
}

// ProfileUpdate is a partial update: nil fields are left unchanged.
type ProfileUpdate struct {
	Username *string `json:"username"`
	Phone    *string `json:"phone"`
}

// Contact is an owned edge joined with the target's public profile.
type Contact struct {
	ID        int64     `json:"id"`
	OwnerID   int64     `json:"-"`
	UserID    int64     `json:"userId"`
	Username  *string   `json:"username"`
	Phone     *string   `json:"phone"`
	CreatedAt time.Time `json:"createdAt"`
}

// PendingShare is a mailbox entry. ContentRef is set when the body lives in
// object storage instead of the row.
type PendingShare struct {
	ID             int64     `json:"id"`
	SenderID       int64     `json:"senderId"`
	SenderUsername *string   `json:"senderUsername"`
	SenderPhone    *string   `json:"senderPhone"`
	RecipientID    int64     `json:"recipientId"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	ContentRef     string    `json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
}

type NewShare struct {
	SenderID    int64
	RecipientID int64
	Title       string
	Content     string
	ContentRef  string
}

// SendResult is returned per successfully enqueued recipient.
type SendResult struct {
	ID                int64     `json:"id"`
	RecipientID       int64     `json:"recipientId"`
	RecipientUsername *string   `json:"recipientUsername"`
	CreatedAt         time.Time `json:"-"`
}

// RemovedShare describes a row deleted by ack or cancel.
type RemovedShare struct {
	ID          int64
	SenderID    int64
	RecipientID int64
	ContentRef  string
}
