// internal/database/db.go
package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"discord-stats-bot/internal/models"
)

var (
	// ErrAlreadyExists marks a duplicate (message, channel) insert. Callers
	// replaying history treat it as success.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrNotFound marks a point lookup with no matching row. Routine for
	// deletion attribution, not exceptional.
	ErrNotFound = errors.New("record not found")

	// ErrCorruptEditRecord marks an edit row whose stored JSON arrays no
	// longer decode. The row is left untouched so no prior history is lost.
	ErrCorruptEditRecord = errors.New("corrupt edit record")
)

// MessageEdit carries one observed content mutation. Either field may be
// absent when the gateway sends a partial update payload.
type MessageEdit struct {
	MessageID string
	ChannelID string
	EditedAt  *int64
	Content   *string
}

// DayCount is one bucket of the per-day aggregates, split into messages seen
// in guilds versus direct messages.
type DayCount struct {
	Date        string `gorm:"column:msg_date"`
	GuildCount  int64  `gorm:"column:guild_count"`
	DirectCount int64  `gorm:"column:direct_count"`
}

// DB owns the sqlite connection and all stored state, including the tracked
// user id set once per gateway session.
type DB struct {
	*gorm.DB

	userMu sync.RWMutex
	userID string
}

// Open opens (or creates) the database at path and migrates the schema. The
// pool is pinned to a single connection so every operation serializes on it,
// which is all the concurrency control the sqlite file needs at this scale.
func Open(path string) (*DB, error) {
	gormDB, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := gormDB.AutoMigrate(
		&models.Message{},
		&models.Edit{},
		&models.Deletion{},
	); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &DB{DB: gormDB}, nil
}

// OpenInMemory opens a throwaway in-memory database.
func OpenInMemory() (*DB, error) {
	return Open(":memory:")
}

// SetCurrentUser records the tracked account id. Written once per session
// ready, read on every event and user-scoped query.
func (db *DB) SetCurrentUser(id string) {
	db.userMu.Lock()
	db.userID = id
	db.userMu.Unlock()
}

// CurrentUserID returns the tracked account id, reporting whether a session
// ready has set one yet.
func (db *DB) CurrentUserID() (string, bool) {
	db.userMu.RLock()
	defer db.userMu.RUnlock()
	return db.userID, db.userID != ""
}

// InsertMessage stores one message row. A duplicate (message, channel) pair
// returns ErrAlreadyExists and leaves the stored row untouched.
func (db *DB) InsertMessage(msg *models.Message) error {
	if err := db.Create(msg).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	if !errors.As(err, &serr) {
		return false
	}
	return serr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// InsertEdit appends one edit to the message's history, creating the history
// row on first edit. The read-modify-write runs in a transaction so a
// concurrent edit cannot drop an entry.
func (db *DB) InsertEdit(edit MessageEdit) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var row models.Edit
		err := tx.Where("message_id = ?", edit.MessageID).First(&row).Error
		switch {
		case err == nil:
			return appendEdit(tx, &row, edit)
		case errors.Is(err, gorm.ErrRecordNotFound):
			return createEdit(tx, edit)
		default:
			return fmt.Errorf("looking up edit record: %w", err)
		}
	})
}

func appendEdit(tx *gorm.DB, row *models.Edit, edit MessageEdit) error {
	var times []int64
	if err := json.Unmarshal([]byte(row.Times), &times); err != nil {
		return fmt.Errorf("%w: times for message %s: %v", ErrCorruptEditRecord, row.MessageID, err)
	}
	var contents []string
	if err := json.Unmarshal([]byte(row.EditContents), &contents); err != nil {
		return fmt.Errorf("%w: contents for message %s: %v", ErrCorruptEditRecord, row.MessageID, err)
	}

	if edit.EditedAt != nil {
		times = append(times, *edit.EditedAt)
	}
	if edit.Content != nil {
		contents = append(contents, *edit.Content)
	}

	encodedTimes, err := json.Marshal(times)
	if err != nil {
		return err
	}
	encodedContents, err := json.Marshal(contents)
	if err != nil {
		return err
	}

	return tx.Model(row).Updates(map[string]interface{}{
		"times":         string(encodedTimes),
		"edit_contents": string(encodedContents),
	}).Error
}

func createEdit(tx *gorm.DB, edit MessageEdit) error {
	times := []int64{}
	if edit.EditedAt != nil {
		times = append(times, *edit.EditedAt)
	}
	contents := []string{}
	if edit.Content != nil {
		contents = append(contents, *edit.Content)
	}

	encodedTimes, err := json.Marshal(times)
	if err != nil {
		return err
	}
	encodedContents, err := json.Marshal(contents)
	if err != nil {
		return err
	}

	return tx.Create(&models.Edit{
		MessageID:    edit.MessageID,
		ChannelID:    edit.ChannelID,
		Times:        string(encodedTimes),
		EditContents: string(encodedContents),
	}).Error
}

// InsertDeletion appends a deletion log entry stamped with the current time.
// Always an insert; repeated notifications produce repeated rows.
func (db *DB) InsertDeletion(channelID, messageID string) error {
	deletion := &models.Deletion{
		MessageID: messageID,
		ChannelID: channelID,
		Time:      time.Now().Unix(),
	}
	if err := db.Create(deletion).Error; err != nil {
		return fmt.Errorf("inserting deletion: %w", err)
	}
	return nil
}

// GetMessageWithChannelID looks up one stored message, returning ErrNotFound
// when the pair was never inserted.
func (db *DB) GetMessageWithChannelID(channelID, messageID string) (*models.Message, error) {
	var msg models.Message
	err := db.Where("channel_id = ? AND message_id = ?", channelID, messageID).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up message: %w", err)
	}
	return &msg, nil
}

// MessageCount returns the number of stored messages.
func (db *DB) MessageCount() (int64, error) {
	var count int64
	err := db.Model(&models.Message{}).Count(&count).Error
	return count, err
}

// UserMessageCount returns the number of stored messages authored by the
// tracked account. Before ready no author can match, so the count is zero.
func (db *DB) UserMessageCount() (int64, error) {
	id, ok := db.CurrentUserID()
	if !ok {
		id = "0"
	}
	var count int64
	err := db.Model(&models.Message{}).Where("author_id = ?", id).Count(&count).Error
	return count, err
}

// EditCount sums the lengths of all stored edit histories. A row whose JSON
// no longer decodes is skipped and logged rather than failing the aggregate.
func (db *DB) EditCount() (int64, error) {
	var rows []models.Edit
	if err := db.Find(&rows).Error; err != nil {
		return 0, fmt.Errorf("loading edit records: %w", err)
	}

	var total int64
	for _, row := range rows {
		var contents []string
		if err := json.Unmarshal([]byte(row.EditContents), &contents); err != nil {
			log.WithError(err).WithField("message_id", row.MessageID).
				Warn("Skipping corrupt edit record")
			continue
		}
		total += int64(len(contents))
	}
	return total, nil
}

// Channels returns the distinct (channel, guild) pairs observed across all
// stored messages.
func (db *DB) Channels() ([]models.Channel, error) {
	var rows []struct {
		ChannelID string
		GuildID   *string
	}
	err := db.Raw("SELECT DISTINCT channel_id, guild_id FROM messages").Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("listing channels: %w", err)
	}

	channels := make([]models.Channel, 0, len(rows))
	for _, row := range rows {
		channelID, err := strconv.ParseUint(row.ChannelID, 10, 64)
		if err != nil {
			log.WithField("channel_id", row.ChannelID).Warn("Skipping unparsable channel id")
			continue
		}
		ch := models.Channel{ChannelID: channelID}
		if row.GuildID != nil {
			guildID, err := strconv.ParseUint(*row.GuildID, 10, 64)
			if err != nil {
				log.WithField("guild_id", *row.GuildID).Warn("Skipping unparsable guild id")
				continue
			}
			ch.GuildID = &guildID
		}
		channels = append(channels, ch)
	}
	return channels, nil
}

// Guilds returns the distinct guild ids observed across all stored messages.
func (db *DB) Guilds() ([]uint64, error) {
	var rows []string
	err := db.Raw("SELECT DISTINCT guild_id FROM messages WHERE guild_id IS NOT NULL").Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("listing guilds: %w", err)
	}

	guilds := make([]uint64, 0, len(rows))
	for _, row := range rows {
		id, err := strconv.ParseUint(row, 10, 64)
		if err != nil {
			log.WithField("guild_id", row).Warn("Skipping unparsable guild id")
			continue
		}
		guilds = append(guilds, id)
	}
	return guilds, nil
}

const perDaySQL = `
SELECT DATE(time, 'unixepoch') AS msg_date,
       SUM(guild_id IS NOT NULL) AS guild_count,
       SUM(guild_id IS NULL) AS direct_count
FROM messages
%s
GROUP BY msg_date
ORDER BY msg_date ASC`

// UserMessagesPerDay buckets the tracked account's messages per day.
func (db *DB) UserMessagesPerDay() ([]DayCount, error) {
	id, ok := db.CurrentUserID()
	if !ok {
		id = "0"
	}
	var rows []DayCount
	query := fmt.Sprintf(perDaySQL, "WHERE author_id = ?")
	if err := db.Raw(query, id).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("counting user messages per day: %w", err)
	}
	return rows, nil
}

// TotalMessagesPerDay buckets all stored messages per day.
func (db *DB) TotalMessagesPerDay() ([]DayCount, error) {
	var rows []DayCount
	query := fmt.Sprintf(perDaySQL, "")
	if err := db.Raw(query).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("counting messages per day: %w", err)
	}
	return rows, nil
}
