// internal/scan/scanner_test.go
package scan

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discord-stats-bot/internal/config"
	"discord-stats-bot/internal/database"
	"discord-stats-bot/internal/models"
)

// fakeFetcher serves pages out of per-channel histories ordered newest
// first, the way the transport does.
type fakeFetcher struct {
	history map[string][]*discordgo.Message
	fail    map[string]error
	calls   int
}

func (f *fakeFetcher) ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, _ ...discordgo.RequestOption) ([]*discordgo.Message, error) {
	f.calls++
	if err := f.fail[channelID]; err != nil {
		return nil, err
	}

	msgs := f.history[channelID]
	start := 0
	if beforeID != "" {
		for i, m := range msgs {
			if m.ID == beforeID {
				start = i + 1
				break
			}
		}
	}
	if start >= len(msgs) {
		return nil, nil
	}
	end := start + limit
	if end > len(msgs) {
		end = len(msgs)
	}
	return msgs[start:end], nil
}

// channelHistory builds n messages with descending ids, newest first.
func channelHistory(n int) []*discordgo.Message {
	msgs := make([]*discordgo.Message, 0, n)
	for i := n; i > 0; i-- {
		msgs = append(msgs, &discordgo.Message{
			ID:        fmt.Sprintf("%d", i),
			Content:   fmt.Sprintf("message %d", i),
			Timestamp: time.Unix(int64(1000+i), 0),
			Author:    &discordgo.User{ID: "9"},
		})
	}
	return msgs
}

func openTestStore(t *testing.T) *database.DB {
	t.Helper()
	store, err := database.OpenInMemory()
	require.NoError(t, err)
	return store
}

func TestScanChannels_PaginatesBackward(t *testing.T) {
	store := openTestStore(t)
	fetcher := &fakeFetcher{history: map[string][]*discordgo.Message{
		"5": channelHistory(250),
	}}

	scanner := New(fetcher, store)
	scanner.ScanChannels([]config.TrackedChannel{{ChannelID: "5"}}, 1000)

	assert.Equal(t, 3, fetcher.calls, "250 messages at 100 per page")

	count, err := store.MessageCount()
	require.NoError(t, err)
	assert.Equal(t, int64(250), count)
}

func TestScanChannels_RescanCollapsesDuplicates(t *testing.T) {
	store := openTestStore(t)
	fetcher := &fakeFetcher{history: map[string][]*discordgo.Message{
		"5": channelHistory(150),
	}}

	scanner := New(fetcher, store)
	scanner.ScanChannels([]config.TrackedChannel{{ChannelID: "5"}}, 1000)
	scanner.ScanChannels([]config.TrackedChannel{{ChannelID: "5"}}, 1000)

	count, err := store.MessageCount()
	require.NoError(t, err)
	assert.Equal(t, int64(150), count)
}

func TestScanChannels_MaxCountStopsPaging(t *testing.T) {
	store := openTestStore(t)
	fetcher := &fakeFetcher{history: map[string][]*discordgo.Message{
		"5": channelHistory(500),
	}}

	scanner := New(fetcher, store)
	scanner.ScanChannels([]config.TrackedChannel{{ChannelID: "5"}}, 200)

	assert.Equal(t, 2, fetcher.calls)

	count, err := store.MessageCount()
	require.NoError(t, err)
	assert.Equal(t, int64(200), count)
}

func TestScanChannels_SmallMaxCapsPageSize(t *testing.T) {
	store := openTestStore(t)
	fetcher := &fakeFetcher{history: map[string][]*discordgo.Message{
		"5": channelHistory(500),
	}}

	scanner := New(fetcher, store)
	scanner.ScanChannels([]config.TrackedChannel{{ChannelID: "5"}}, 30)

	count, err := store.MessageCount()
	require.NoError(t, err)
	assert.Equal(t, int64(30), count)
}

func TestScanChannels_ErrorAbortsThatChannelOnly(t *testing.T) {
	store := openTestStore(t)
	fetcher := &fakeFetcher{
		history: map[string][]*discordgo.Message{
			"6": channelHistory(50),
		},
		fail: map[string]error{"5": errors.New("rate limited")},
	}

	scanner := New(fetcher, store)
	scanner.ScanChannels([]config.TrackedChannel{
		{ChannelID: "5"},
		{ChannelID: "6"},
	}, 1000)

	count, err := store.MessageCount()
	require.NoError(t, err)
	assert.Equal(t, int64(50), count, "second target still scanned after first fails")
}

func TestScanChannels_GuildIDComesFromTarget(t *testing.T) {
	store := openTestStore(t)
	fetcher := &fakeFetcher{history: map[string][]*discordgo.Message{
		"5": channelHistory(3),
	}}

	scanner := New(fetcher, store)
	scanner.ScanChannels([]config.TrackedChannel{{GuildID: "7", ChannelID: "5"}}, 1000)

	var rows []models.Message
	require.NoError(t, store.Find(&rows).Error)
	require.Len(t, rows, 3)
	for _, row := range rows {
		require.NotNil(t, row.GuildID)
		assert.Equal(t, "7", *row.GuildID)
		assert.Equal(t, "5", row.ChannelID)
	}
}
