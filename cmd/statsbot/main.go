// cmd/statsbot/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"discord-stats-bot/internal/api"
	"discord-stats-bot/internal/bot"
	"discord-stats-bot/internal/config"
	"discord-stats-bot/internal/database"
	"discord-stats-bot/internal/scan"
)

// Distinct exit codes so operators can tell bad config from bad credentials.
const (
	exitGeneric = 1
	exitConfig  = 2
	exitDiscord = 3
)

// readyTimeout bounds the one-shot ready handshake; a session that never
// authenticates fails the command instead of hanging.
const readyTimeout = 60 * time.Second

type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string { return e.err.Error() }
func (e exitError) Unwrap() error { return e.err }

func configErr(err error) error  { return exitError{code: exitConfig, err: err} }
func discordErr(err error) error { return exitError{code: exitDiscord, err: err} }

func main() {
	// Optional .env so DISCORD_TOKEN can override the config file token.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		var ee exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(exitGeneric)
	}
}

var rootCmd = &cobra.Command{
	Use:          "statsbot",
	Short:        "Personal Discord message logger",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLogger()
	},
}

var scanMax int

var scanCmd = &cobra.Command{
	Use:   "scan [guildId|channelId ...]",
	Short: "Backfill channel history into the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return configErr(err)
		}

		var targets []config.TrackedChannel
		if len(args) > 0 {
			for _, spec := range args {
				tc, err := config.ParseChannelSpec(spec)
				if err != nil {
					return configErr(err)
				}
				targets = append(targets, tc)
			}
		} else {
			targets, err = cfg.Tracked()
			if err != nil {
				return configErr(err)
			}
		}
		if len(targets) == 0 {
			return configErr(errors.New("no channels to scan: pass specifiers or configure tracked_channels"))
		}

		store, err := database.Open(cfg.Database)
		if err != nil {
			return err
		}

		session, _, err := openOneshot(cfg.Token)
		if err != nil {
			return discordErr(err)
		}
		defer session.Close()

		scanner := scan.New(session, store)
		scanner.ScanChannels(targets, scanMax)
		return nil
	},
}

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "List reachable guilds and channels as tracked-channel specifiers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return configErr(err)
		}

		session, ready, err := openOneshot(cfg.Token)
		if err != nil {
			return discordErr(err)
		}
		defer session.Close()

		for _, g := range ready.Guilds {
			name := g.Name
			if name == "" {
				// Ready often carries unavailable guild stubs.
				if guild, err := session.Guild(g.ID); err == nil {
					name = guild.Name
				}
			}
			chans, err := session.GuildChannels(g.ID)
			if err != nil {
				log.WithError(err).WithField("guild_id", g.ID).Warn("Failed to list guild channels")
				continue
			}
			for _, ch := range chans {
				if ch.Type != discordgo.ChannelTypeGuildText {
					continue
				}
				fmt.Printf("%s|%s\t%s #%s\n", g.ID, ch.ID, name, ch.Name)
			}
		}

		for _, ch := range ready.PrivateChannels {
			label := ""
			for i, user := range ch.Recipients {
				if i > 0 {
					label += ", "
				}
				label += "@" + user.Username
			}
			fmt.Printf("%s\t%s\n", ch.ID, label)
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := config.DefaultDir()
		if err != nil {
			return configErr(err)
		}
		path, err := config.DefaultPath()
		if err != nil {
			return configErr(err)
		}

		if err := config.Init(path, config.NewConfig(dir)); err != nil {
			return configErr(err)
		}
		fmt.Printf("Configuration initialized at %s\n", path)
		return nil
	},
}

func init() {
	scanCmd.Flags().IntVar(&scanMax, "max", 1000, "maximum messages to scan per channel")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(scanCmd, channelsCmd, configCmd)
}

func runLogger() error {
	cfg, err := loadConfig()
	if err != nil {
		return configErr(err)
	}

	store, err := database.Open(cfg.Database)
	if err != nil {
		return err
	}

	tracked, err := cfg.TrackedSet()
	if err != nil {
		return configErr(err)
	}
	tracker := bot.NewTracker(tracked)
	handler := bot.NewHandler(store, tracker)

	session, err := discordgo.New(cfg.Token)
	if err != nil {
		return discordErr(fmt.Errorf("creating session: %w", err))
	}

	session.AddHandler(handler.HandleReady)
	session.AddHandler(handler.HandleMessageCreate)
	session.AddHandler(handler.HandleMessageUpdate)
	session.AddHandler(handler.HandleMessageDelete)
	session.AddHandler(handler.HandleMessageDeleteBulk)

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	if err := session.Open(); err != nil {
		return discordErr(fmt.Errorf("opening gateway connection: %w", err))
	}
	defer session.Close()

	router := api.NewServer(store)
	go func() {
		if err := router.Run(cfg.HTTPAddr); err != nil {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()
	log.WithField("addr", cfg.HTTPAddr).Info("Serving stats API")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down")
	return nil
}

func loadConfig() (*config.Config, error) {
	path, err := config.DefaultPath()
	if err != nil {
		return nil, err
	}
	cfg, err := config.ReadFromFile(path)
	if err != nil {
		return nil, err
	}
	if token := os.Getenv("DISCORD_TOKEN"); token != "" {
		cfg.Token = token
	}
	if cfg.Token == "" {
		return nil, errors.New("no token configured")
	}
	return cfg, nil
}

// openOneshot connects a short-lived session and waits for its ready.
func openOneshot(token string) (*discordgo.Session, *discordgo.Ready, error) {
	session, err := discordgo.New(token)
	if err != nil {
		return nil, nil, fmt.Errorf("creating session: %w", err)
	}

	waiter := bot.NewReadyWaiter()
	session.AddHandler(waiter.HandleReady)
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages

	if err := session.Open(); err != nil {
		return nil, nil, fmt.Errorf("opening gateway connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), readyTimeout)
	defer cancel()

	ready, err := waiter.Wait(ctx)
	if err != nil {
		session.Close()
		return nil, nil, fmt.Errorf("waiting for session ready: %w", err)
	}
	return session, ready, nil
}
