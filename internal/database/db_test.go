// internal/database/db_test.go
package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discord-stats-bot/internal/models"
)

// openTestStore creates a migrated in-memory store for testing.
func openTestStore(t *testing.T) *DB {
	t.Helper()
	db, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, err := db.DB.DB()
		if err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func msgRow(messageID, channelID string, guildID *string, authorID, content string, ts int64) *models.Message {
	return &models.Message{
		MessageID: messageID,
		Time:      ts,
		Content:   content,
		ChannelID: channelID,
		GuildID:   guildID,
		AuthorID:  authorID,
	}
}

func strPtr(s string) *string { return &s }
func i64Ptr(i int64) *int64   { return &i }

func TestInsertMessage_DuplicateLeavesStoredRowUntouched(t *testing.T) {
	db := openTestStore(t)

	require.NoError(t, db.InsertMessage(msgRow("100", "5", nil, "9", "hi", 1000)))

	err := db.InsertMessage(msgRow("100", "5", nil, "9", "changed", 2000))
	assert.ErrorIs(t, err, ErrAlreadyExists)

	stored, err := db.GetMessageWithChannelID("5", "100")
	require.NoError(t, err)
	assert.Equal(t, "hi", stored.Content)
	assert.Equal(t, int64(1000), stored.Time)

	count, err := db.MessageCount()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestInsertMessage_SameIDInDifferentChannels(t *testing.T) {
	db := openTestStore(t)

	require.NoError(t, db.InsertMessage(msgRow("100", "5", nil, "9", "hi", 1000)))
	require.NoError(t, db.InsertMessage(msgRow("100", "6", nil, "9", "hi", 1000)))

	count, err := db.MessageCount()
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestGetMessageWithChannelID(t *testing.T) {
	db := openTestStore(t)

	_, err := db.GetMessageWithChannelID("5", "100")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.InsertMessage(msgRow("100", "5", strPtr("7"), "9", "hi", 1000)))

	stored, err := db.GetMessageWithChannelID("5", "100")
	require.NoError(t, err)
	assert.Equal(t, "100", stored.MessageID)
	assert.Equal(t, "5", stored.ChannelID)
	require.NotNil(t, stored.GuildID)
	assert.Equal(t, "7", *stored.GuildID)
	assert.Equal(t, "9", stored.AuthorID)
	assert.Equal(t, "hi", stored.Content)
	assert.Equal(t, int64(1000), stored.Time)
}

func TestInsertEdit_CreatesThenAppends(t *testing.T) {
	db := openTestStore(t)

	require.NoError(t, db.InsertEdit(MessageEdit{
		MessageID: "100",
		ChannelID: "5",
		EditedAt:  i64Ptr(1001),
		Content:   strPtr("bye"),
	}))

	var row models.Edit
	require.NoError(t, db.Where("message_id = ?", "100").First(&row).Error)
	assert.Equal(t, "[1001]", row.Times)
	assert.Equal(t, `["bye"]`, row.EditContents)

	require.NoError(t, db.InsertEdit(MessageEdit{
		MessageID: "100",
		ChannelID: "5",
		EditedAt:  i64Ptr(1002),
		Content:   strPtr("cya"),
	}))

	require.NoError(t, db.Where("message_id = ?", "100").First(&row).Error)
	assert.Equal(t, "[1001,1002]", row.Times)
	assert.Equal(t, `["bye","cya"]`, row.EditContents)

	var editRows int64
	require.NoError(t, db.Model(&models.Edit{}).Count(&editRows).Error)
	assert.Equal(t, int64(1), editRows, "edits extend the record, never create a second row")
}

func TestInsertEdit_PartialUpdateAppendsPresentFieldsOnly(t *testing.T) {
	db := openTestStore(t)

	require.NoError(t, db.InsertEdit(MessageEdit{MessageID: "100", ChannelID: "5"}))

	var row models.Edit
	require.NoError(t, db.Where("message_id = ?", "100").First(&row).Error)
	assert.Equal(t, "[]", row.Times)
	assert.Equal(t, "[]", row.EditContents)

	require.NoError(t, db.InsertEdit(MessageEdit{
		MessageID: "100",
		ChannelID: "5",
		Content:   strPtr("only content"),
	}))

	require.NoError(t, db.Where("message_id = ?", "100").First(&row).Error)
	assert.Equal(t, "[]", row.Times)
	assert.Equal(t, `["only content"]`, row.EditContents)
}

func TestInsertEdit_CorruptRowIsLeftAlone(t *testing.T) {
	db := openTestStore(t)

	require.NoError(t, db.Create(&models.Edit{
		MessageID:    "100",
		ChannelID:    "5",
		Times:        "not json",
		EditContents: "also not json",
	}).Error)

	err := db.InsertEdit(MessageEdit{
		MessageID: "100",
		ChannelID: "5",
		EditedAt:  i64Ptr(1001),
		Content:   strPtr("bye"),
	})
	assert.ErrorIs(t, err, ErrCorruptEditRecord)

	var row models.Edit
	require.NoError(t, db.Where("message_id = ?", "100").First(&row).Error)
	assert.Equal(t, "not json", row.Times, "corrupt history must not be overwritten")
}

func TestInsertDeletion_AppendOnly(t *testing.T) {
	db := openTestStore(t)

	require.NoError(t, db.InsertDeletion("5", "100"))
	require.NoError(t, db.InsertDeletion("5", "100"))

	var count int64
	require.NoError(t, db.Model(&models.Deletion{}).Count(&count).Error)
	assert.Equal(t, int64(2), count, "deletions are a log, not a set")
}

func TestUserMessageCount(t *testing.T) {
	db := openTestStore(t)

	require.NoError(t, db.InsertMessage(msgRow("100", "5", nil, "9", "hi", 1000)))
	require.NoError(t, db.InsertMessage(msgRow("101", "5", nil, "42", "other", 1000)))

	// No tracked identity yet: nothing can match.
	count, err := db.UserMessageCount()
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	db.SetCurrentUser("9")
	count, err = db.UserMessageCount()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	total, err := db.MessageCount()
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestEditCount_SumsHistoriesAndSkipsCorruptRows(t *testing.T) {
	db := openTestStore(t)

	require.NoError(t, db.InsertEdit(MessageEdit{MessageID: "100", ChannelID: "5", EditedAt: i64Ptr(1001), Content: strPtr("a")}))
	require.NoError(t, db.InsertEdit(MessageEdit{MessageID: "100", ChannelID: "5", EditedAt: i64Ptr(1002), Content: strPtr("b")}))
	require.NoError(t, db.InsertEdit(MessageEdit{MessageID: "200", ChannelID: "5", EditedAt: i64Ptr(1003), Content: strPtr("c")}))
	require.NoError(t, db.Create(&models.Edit{MessageID: "300", ChannelID: "5", Times: "[]", EditContents: "broken"}).Error)

	count, err := db.EditCount()
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestChannelsAndGuilds(t *testing.T) {
	db := openTestStore(t)

	require.NoError(t, db.InsertMessage(msgRow("100", "5", nil, "9", "hi", 1000)))
	require.NoError(t, db.InsertMessage(msgRow("101", "5", nil, "9", "again", 1001)))
	require.NoError(t, db.InsertMessage(msgRow("102", "6", strPtr("7"), "9", "guild", 1002)))

	channels, err := db.Channels()
	require.NoError(t, err)
	require.Len(t, channels, 2)

	byID := map[uint64]models.Channel{}
	for _, ch := range channels {
		byID[ch.ChannelID] = ch
	}
	assert.Nil(t, byID[5].GuildID)
	require.NotNil(t, byID[6].GuildID)
	assert.Equal(t, uint64(7), *byID[6].GuildID)

	guilds, err := db.Guilds()
	require.NoError(t, err)
	assert.Equal(t, []uint64{7}, guilds)
}

func TestMessagesPerDay(t *testing.T) {
	db := openTestStore(t)
	db.SetCurrentUser("9")

	const day1 = int64(1000)            // 1970-01-01
	const day2 = int64(1000 + 24*60*60) // 1970-01-02

	require.NoError(t, db.InsertMessage(msgRow("100", "5", nil, "9", "dm", day1)))
	require.NoError(t, db.InsertMessage(msgRow("101", "6", strPtr("7"), "9", "guild", day1)))
	require.NoError(t, db.InsertMessage(msgRow("102", "6", strPtr("7"), "42", "other", day1)))
	require.NoError(t, db.InsertMessage(msgRow("103", "5", nil, "9", "later", day2)))

	user, err := db.UserMessagesPerDay()
	require.NoError(t, err)
	require.Len(t, user, 2)
	assert.Equal(t, DayCount{Date: "1970-01-01", GuildCount: 1, DirectCount: 1}, user[0])
	assert.Equal(t, DayCount{Date: "1970-01-02", GuildCount: 0, DirectCount: 1}, user[1])

	total, err := db.TotalMessagesPerDay()
	require.NoError(t, err)
	require.Len(t, total, 2)
	assert.Equal(t, DayCount{Date: "1970-01-01", GuildCount: 2, DirectCount: 1}, total[0])
}
