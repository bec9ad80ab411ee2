// internal/models/models.go
package models

// Message is one observed chat message. Snowflake ids are stored as their
// decimal string form so 64-bit values survive the storage boundary intact.
// A message row is written once and never updated; edits and deletions are
// recorded in their own tables.
type Message struct {
	ID        uint   `gorm:"primaryKey"`
	MessageID string `gorm:"uniqueIndex:idx_messages_message_channel;not null"`
	Time      int64  `gorm:"not null"`
	Content   string `gorm:"type:text"`
	ChannelID string `gorm:"uniqueIndex:idx_messages_message_channel;not null"`
	GuildID   *string
	AuthorID  string `gorm:"not null"`
}

// Edit holds the full edit history of a single message: two parallel
// JSON-encoded arrays, one timestamp and one content snapshot per observed
// edit, oldest first. A message has at most one Edit row; later edits extend
// the arrays in place.
type Edit struct {
	ID           uint   `gorm:"primaryKey"`
	MessageID    string `gorm:"uniqueIndex:idx_edits_message_channel;not null"`
	ChannelID    string `gorm:"uniqueIndex:idx_edits_message_channel;not null"`
	Times        string `gorm:"type:text"`
	EditContents string `gorm:"type:text"`
}

// Deletion is an append-only log entry. Repeated deletion notifications for
// the same message produce repeated rows; the log is never deduplicated.
type Deletion struct {
	ID        uint   `gorm:"primaryKey"`
	MessageID string `gorm:"not null"`
	ChannelID string `gorm:"not null"`
	Time      int64  `gorm:"not null"`
}

// Channel is a distinct (channel, guild) pair projected from the stored
// messages. Ids are native numbers here because this is the wire shape the
// stats API responds with; a nil GuildID marks a direct message channel.
type Channel struct {
	ChannelID uint64  `json:"channel_id"`
	GuildID   *uint64 `json:"guild_id"`
}
