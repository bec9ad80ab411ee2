// internal/scan/scanner.go
package scan

import (
	"errors"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"

	"discord-stats-bot/internal/config"
	"discord-stats-bot/internal/database"
	"discord-stats-bot/internal/models"
)

// maxMessagesPerCall is the transport's page size cap.
const maxMessagesPerCall = 100

// MessageFetcher is the slice of the session API the scanner needs;
// *discordgo.Session satisfies it.
type MessageFetcher interface {
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
}

// Scanner seeds the database by walking channel history backward from the
// most recent message. Every page goes through the same insert path as live
// events, so re-scanning overlapping ranges is harmless.
type Scanner struct {
	fetcher MessageFetcher
	store   *database.DB
}

func New(fetcher MessageFetcher, store *database.DB) *Scanner {
	return &Scanner{
		fetcher: fetcher,
		store:   store,
	}
}

// ScanChannels scans each target up to maxCount messages. A fetch error
// aborts that channel only; the remaining targets still run.
func (s *Scanner) ScanChannels(targets []config.TrackedChannel, maxCount int) {
	for _, target := range targets {
		s.scanChannel(target, maxCount)
	}
}

func (s *Scanner) scanChannel(target config.TrackedChannel, maxCount int) {
	perCall := maxCount
	if perCall > maxMessagesPerCall {
		perCall = maxMessagesPerCall
	}

	logger := log.WithField("channel_id", target.ChannelID)

	var before string
	var searched, inserted, duplicates int
	for searched < maxCount {
		msgs, err := s.fetcher.ChannelMessages(target.ChannelID, perCall, before, "", "")
		if err != nil {
			logger.WithError(err).Error("Failed to fetch channel history")
			return
		}
		if len(msgs) == 0 {
			break
		}

		for _, m := range msgs {
			if m.Author == nil {
				continue
			}
			msg := &models.Message{
				MessageID: m.ID,
				Time:      m.Timestamp.Unix(),
				Content:   m.Content,
				ChannelID: target.ChannelID,
				// The history endpoint leaves GuildID empty; take it
				// from the scan target instead.
				GuildID:  guildPtr(target.GuildID),
				AuthorID: m.Author.ID,
			}
			err := s.store.InsertMessage(msg)
			switch {
			case err == nil:
				inserted++
			case errors.Is(err, database.ErrAlreadyExists):
				duplicates++
			default:
				logger.WithError(err).WithField("message_id", m.ID).Error("Failed to insert message")
			}
		}

		// Pages arrive newest first; the last entry is the oldest and
		// becomes the exclusive upper bound of the next page.
		before = msgs[len(msgs)-1].ID
		searched += perCall

		if len(msgs) < perCall {
			break
		}
	}

	logger.WithFields(log.Fields{
		"inserted":   inserted,
		"duplicates": duplicates,
	}).Info("Channel scan complete")
}

func guildPtr(guildID string) *string {
	if guildID == "" {
		return nil
	}
	return &guildID
}
