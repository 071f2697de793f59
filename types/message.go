package types

import "time"

// Message is a direct message addressed to a single recipient.
//
// Sender and Recipient are usernames stored as free text; they are not
// checked against the users table, so a message may name an account that
// does not exist.
type Message struct {
	// ID is assigned by the database and increases monotonically.
	ID int64 `json:"id" db:"id"`

	// Sender is the username of the authenticated author.
	Sender string `json:"sender" db:"sender"`

	// Recipient is the username the message is addressed to.
	Recipient string `json:"recipient" db:"recipient"`

	// Content is the optional text body. Nil when the message only carries a file.
	Content *string `json:"content" db:"content"`

	// FilePath is the attachment reference returned by the attachment handler,
	// or nil when no file was sent.
	FilePath *string `json:"file_path" db:"file_path"`

	// IsRead flips to true the first time the recipient fetches the message
	// as unread. It is never reset.
	IsRead bool `json:"is_read" db:"is_read"`

	// CreatedAt is assigned at insert time and orders the history view.
	CreatedAt time.Time `json:"timestamp" db:"created_at"`
}

// MessageSentEvent is published to the events backend after a message is stored.
type MessageSentEvent struct {
	ID        int64     `json:"id"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient"`
	HasFile   bool      `json:"has_file"`
	Timestamp time.Time `json:"timestamp"`
}
