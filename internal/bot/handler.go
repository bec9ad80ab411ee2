// internal/bot/handler.go
package bot

import (
	"errors"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"

	"discord-stats-bot/internal/database"
	"discord-stats-bot/internal/models"
)

// Handler routes gateway events into the store. Storage failures are logged
// and the event dropped; the gateway session must never be disrupted by a
// storage hiccup.
type Handler struct {
	store   *database.DB
	tracker *Tracker
}

func NewHandler(store *database.DB, tracker *Tracker) *Handler {
	return &Handler{
		store:   store,
		tracker: tracker,
	}
}

// HandleReady records the session account as the tracked identity and drops
// the client to an invisible presence. The logger observes passively and
// must not appear online.
func (h *Handler) HandleReady(s *discordgo.Session, r *discordgo.Ready) {
	h.store.SetCurrentUser(r.User.ID)
	h.tracker.SetUser(r.User.ID)

	if err := s.UpdateStatusComplex(discordgo.UpdateStatusData{
		Status: string(discordgo.StatusInvisible),
	}); err != nil {
		log.WithError(err).Warn("Failed to set invisible presence")
	}

	log.WithField("user", r.User.Username).Info("Connected to gateway")
}

func (h *Handler) HandleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil {
		return
	}
	if !h.tracker.ShouldHandle(m.Author.ID, m.GuildID, m.ChannelID) {
		return
	}

	msg := &models.Message{
		MessageID: m.ID,
		Time:      m.Timestamp.Unix(),
		Content:   m.Content,
		ChannelID: m.ChannelID,
		GuildID:   guildPtr(m.GuildID),
		AuthorID:  m.Author.ID,
	}
	err := h.store.InsertMessage(msg)
	if err != nil && !errors.Is(err, database.ErrAlreadyExists) {
		log.WithError(err).WithField("message_id", m.ID).Error("Failed to insert message")
	}
}

// HandleMessageUpdate appends one entry to the message's edit history. The
// update payload may omit the author and guild; the old-message snapshot
// fills the gap when the transport provides one.
func (h *Handler) HandleMessageUpdate(s *discordgo.Session, m *discordgo.MessageUpdate) {
	author := m.Author
	guildID := m.GuildID
	if m.BeforeUpdate != nil {
		if author == nil {
			author = m.BeforeUpdate.Author
		}
		if guildID == "" {
			guildID = m.BeforeUpdate.GuildID
		}
	}
	if author == nil {
		return
	}
	if !h.tracker.ShouldHandle(author.ID, guildID, m.ChannelID) {
		return
	}

	edit := database.MessageEdit{
		MessageID: m.ID,
		ChannelID: m.ChannelID,
	}
	if m.EditedTimestamp != nil {
		t := m.EditedTimestamp.Unix()
		edit.EditedAt = &t
	}
	if m.Content != "" {
		c := m.Content
		edit.Content = &c
	}

	if err := h.store.InsertEdit(edit); err != nil {
		log.WithError(err).WithField("message_id", m.ID).Error("Failed to record edit")
	}
}

func (h *Handler) HandleMessageDelete(s *discordgo.Session, m *discordgo.MessageDelete) {
	h.recordDeletion(m.ChannelID, m.ID)
}

// HandleMessageDeleteBulk records each deleted id independently; a failure
// on one id does not block the rest.
func (h *Handler) HandleMessageDeleteBulk(s *discordgo.Session, m *discordgo.MessageDeleteBulk) {
	for _, id := range m.Messages {
		h.recordDeletion(m.ChannelID, id)
	}
}

// recordDeletion attributes a deletion via the stored message, since the
// gateway delete payload carries no author. Deletions of messages never
// stored cannot be attributed and are dropped.
func (h *Handler) recordDeletion(channelID, messageID string) {
	stored, err := h.store.GetMessageWithChannelID(channelID, messageID)
	if errors.Is(err, database.ErrNotFound) {
		return
	}
	if err != nil {
		log.WithError(err).WithField("message_id", messageID).Error("Failed to look up deleted message")
		return
	}

	guildID := ""
	if stored.GuildID != nil {
		guildID = *stored.GuildID
	}
	if !h.tracker.ShouldHandle(stored.AuthorID, guildID, stored.ChannelID) {
		return
	}

	if err := h.store.InsertDeletion(channelID, messageID); err != nil {
		log.WithError(err).WithField("message_id", messageID).Error("Failed to record deletion")
	}
}

func guildPtr(guildID string) *string {
	if guildID == "" {
		return nil
	}
	return &guildID
}
