// internal/api/server.go
package api

import (
	"embed"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"discord-stats-bot/internal/database"
	"discord-stats-bot/internal/models"
)

//go:embed web
var dashboardFS embed.FS

// NewServer builds the read-only stats router. There is no authentication;
// the server is meant to bind to localhost. Store errors degrade to an empty
// 204 or an empty-array body so the dashboard keeps rendering.
func NewServer(store *database.DB) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/api/msg_count", userMsgCount(store))
	r.GET("/api/user_msg_count", userMsgCount(store))
	r.GET("/api/total_msg_count", totalMsgCount(store))
	r.GET("/api/edit_count", editCount(store))
	r.GET("/api/channels", channels(store))
	r.GET("/api/guilds", guilds(store))
	r.GET("/api/user_msg_count_per_day", perDay(store.UserMessagesPerDay))
	r.GET("/api/total_msg_count_per_day", perDay(store.TotalMessagesPerDay))

	r.GET("/", asset("web/index.html", "text/html; charset=utf-8"))
	r.GET("/index.js", asset("web/index.js", "application/javascript"))

	return r
}

func userMsgCount(store *database.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		count, err := store.UserMessageCount()
		if err != nil {
			log.WithError(err).Error("Failed to get user message count")
			// A 204 carries no body, so no internal detail leaks.
			c.Status(http.StatusNoContent)
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": count})
	}
}

func totalMsgCount(store *database.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		count, err := store.MessageCount()
		if err != nil {
			log.WithError(err).Error("Failed to get message count")
			c.Status(http.StatusNoContent)
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": count})
	}
}

func editCount(store *database.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		count, err := store.EditCount()
		if err != nil {
			log.WithError(err).Error("Failed to get edit count")
			c.Status(http.StatusNoContent)
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": count})
	}
}

func channels(store *database.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		chans, err := store.Channels()
		if err != nil {
			log.WithError(err).Error("Failed to get channels")
			c.JSON(http.StatusInternalServerError, []models.Channel{})
			return
		}
		c.JSON(http.StatusOK, chans)
	}
}

func guilds(store *database.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		ids, err := store.Guilds()
		if err != nil {
			log.WithError(err).Error("Failed to get guilds")
			c.JSON(http.StatusInternalServerError, []uint64{})
			return
		}
		c.JSON(http.StatusOK, ids)
	}
}

// perDay renders day buckets as (date, guild count, direct count) tuples.
func perDay(query func() ([]database.DayCount, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := query()
		if err != nil {
			log.WithError(err).Error("Failed to get per-day counts")
			c.JSON(http.StatusInternalServerError, []interface{}{})
			return
		}
		out := make([]interface{}, 0, len(rows))
		for _, row := range rows {
			out = append(out, []interface{}{row.Date, row.GuildCount, row.DirectCount})
		}
		c.JSON(http.StatusOK, out)
	}
}

func asset(path, contentType string) gin.HandlerFunc {
	body, err := dashboardFS.ReadFile(path)
	if err != nil {
		// Build-time embed; missing files are a packaging bug.
		panic(err)
	}
	return func(c *gin.Context) {
		c.Data(http.StatusOK, contentType, body)
	}
}
