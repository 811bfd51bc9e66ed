// Discord approval transport
package services

import (
	"context"
	"fmt"

	"github.com/boergens/spotify-shokz-sync/internal/models"
	"github.com/boergens/spotify-shokz-sync/internal/shared"
	"github.com/bwmarrin/discordgo"
	"github.com/charmbracelet/log"
)

const (
	reactionApprove = "✅"
	reactionReject  = "❌"

	spotifyGreen = 0x1db954
)

// DecisionFunc receives reviewer verdicts keyed by announcement handle.
type DecisionFunc func(handle string, decision models.Decision)

// DiscordNotifier announces tracks to a Discord channel and turns message
// replies and ✅/❌ reactions into decisions. The announcement message ID is
// the handle the rest of the pipeline tracks.
type DiscordNotifier struct {
	session    *discordgo.Session
	channelID  string
	logger     *log.Logger
	onDecision DecisionFunc
}

// NewDiscordNotifier builds the notifier but does not connect; call
// [DiscordNotifier.Open] once a decision handler is installed.
func NewDiscordNotifier(cfg shared.DiscordConfig, logger *log.Logger) (*DiscordNotifier, error) {
	if cfg.BotToken == "" || cfg.ChannelID == "" {
		return nil, fmt.Errorf("%w: discord bot_token and channel_id are required", shared.ErrMissingCredentials)
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	session, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	// Message content is a privileged intent; the bot must have it enabled
	// in the developer portal or replies arrive empty.
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentMessageContent

	n := &DiscordNotifier{session: session, channelID: cfg.ChannelID, logger: logger}
	session.AddHandler(n.handleMessage)
	session.AddHandler(n.handleReaction)

	return n, nil
}

// OnDecision installs the callback invoked for every recognized reviewer
// verdict. Install it before Open; decisions arriving without a handler are
// logged and dropped.
func (n *DiscordNotifier) OnDecision(fn DecisionFunc) {
	n.onDecision = fn
}

// Open connects the gateway session.
func (n *DiscordNotifier) Open() error {
	if err := n.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	return nil
}

// Close disconnects the gateway session.
func (n *DiscordNotifier) Close() error {
	return n.session.Close()
}

// Announce posts the approval request and returns the message ID as the
// decision handle. The message is seeded with ✅/❌ so one tap answers.
func (n *DiscordNotifier) Announce(ctx context.Context, track *models.Track) (string, error) {
	embed := &discordgo.MessageEmbed{
		Title:       track.Name,
		Description: fmt.Sprintf("by **%s**", track.Artist),
		Color:       spotifyGreen,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Album", Value: track.Album, Inline: true},
			{Name: "Length", Value: shared.FormatDuration(track.DurationMS), Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "Spotify ID: " + track.ID},
	}
	if track.ArtworkURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: track.ArtworkURL}
	}

	msg, err := n.session.ChannelMessageSendComplex(n.channelID, &discordgo.MessageSend{
		Content: "Found new song! Reply **yes** or **no** to this message:",
		Embeds:  []*discordgo.MessageEmbed{embed},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to announce track: %w", err)
	}

	for _, emoji := range []string{reactionApprove, reactionReject} {
		if err := n.session.MessageReactionAdd(n.channelID, msg.ID, emoji, discordgo.WithContext(ctx)); err != nil {
			n.logger.Warn("failed to seed reaction", "emoji", emoji, "error", err)
		}
	}

	return msg.ID, nil
}

// Acknowledge confirms a resolved decision back to the channel.
func (n *DiscordNotifier) Acknowledge(ctx context.Context, track *models.Track, decision models.Decision) error {
	var message string
	switch decision {
	case models.DecisionApprove:
		message = fmt.Sprintf("Approved **%s** by %s. Will record it soon.", track.Name, track.Artist)
	case models.DecisionReject:
		message = fmt.Sprintf("Skipped **%s** by %s.", track.Name, track.Artist)
	default:
		return nil
	}

	return n.Notify(ctx, message)
}

// Notify posts a plain lifecycle notice to the channel.
func (n *DiscordNotifier) Notify(ctx context.Context, message string) error {
	if _, err := n.session.ChannelMessageSend(n.channelID, message, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to send notice: %w", err)
	}
	return nil
}

// handleMessage turns replies to announcements into decisions. Replies that
// parse to no known verdict are ignored, not rejected.
func (n *DiscordNotifier) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.ChannelID != n.channelID {
		return
	}
	if m.MessageReference == nil || m.MessageReference.MessageID == "" {
		return
	}

	decision := models.ParseDecision(m.Content)
	if decision == models.DecisionUnrecognized {
		n.logger.Debug("ignoring unrecognized reply", "content", m.Content)
		return
	}

	n.dispatch(m.MessageReference.MessageID, decision)
}

// handleReaction turns ✅/❌ reactions on announcements into decisions.
func (n *DiscordNotifier) handleReaction(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if r.ChannelID != n.channelID {
		return
	}
	// Skip the seed reactions the bot adds to its own announcements.
	if s.State != nil && s.State.User != nil && r.UserID == s.State.User.ID {
		return
	}

	var decision models.Decision
	switch r.Emoji.Name {
	case reactionApprove:
		decision = models.DecisionApprove
	case reactionReject:
		decision = models.DecisionReject
	default:
		return
	}

	n.dispatch(r.MessageID, decision)
}

func (n *DiscordNotifier) dispatch(handle string, decision models.Decision) {
	if n.onDecision == nil {
		n.logger.Warn("decision received with no handler installed", "handle", handle)
		return
	}
	n.onDecision(handle, decision)
}

// LogNotifier is the fallback [Notifier] when Discord is not configured. It
// writes announcements to the log and never produces decisions; pending
// tracks wait for the review TUI instead.
type LogNotifier struct {
	logger *log.Logger
}

func NewLogNotifier(logger *log.Logger) *LogNotifier {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Announce(_ context.Context, track *models.Track) (string, error) {
	n.logger.Info("track waiting for review", "track", track.Display(), "id", track.ID)
	return shared.GenerateID(), nil
}

func (n *LogNotifier) Acknowledge(_ context.Context, track *models.Track, decision models.Decision) error {
	n.logger.Info("decision recorded", "track", track.Display(), "decision", decision)
	return nil
}

func (n *LogNotifier) Notify(_ context.Context, message string) error {
	n.logger.Info(message)
	return nil
}
