package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"economy-sentinel/internal/analytics"
	"economy-sentinel/internal/config"
	"economy-sentinel/internal/economy"
	"economy-sentinel/internal/health"
	"economy-sentinel/internal/modules/audit"
	"economy-sentinel/internal/notify"
	"economy-sentinel/internal/risk"
	"economy-sentinel/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type Bot struct {
	cfg        config.Config
	logger     *zap.Logger
	store      *storage.Store
	audit      *audit.Logger
	analytics  *analytics.Service
	economy    *economy.Manager
	risk       *risk.Engine
	analyzer   *health.Analyzer
	dispatcher *notify.Dispatcher
	session    *discordgo.Session
}

type Deps struct {
	Store      *storage.Store
	Audit      *audit.Logger
	Analytics  *analytics.Service
	Economy    *economy.Manager
	Risk       *risk.Engine
	Analyzer   *health.Analyzer
	Dispatcher *notify.Dispatcher
}

func New(cfg config.Config, logger *zap.Logger, deps Deps) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}
	session.Identify.Intents = discordgo.IntentsGuilds

	b := &Bot{
		cfg:        cfg,
		logger:     logger,
		store:      deps.Store,
		audit:      deps.Audit,
		analytics:  deps.Analytics,
		economy:    deps.Economy,
		risk:       deps.Risk,
		analyzer:   deps.Analyzer,
		dispatcher: deps.Dispatcher,
		session:    session,
	}
	if b.audit != nil && b.dispatcher != nil {
		b.audit.SetNotifier(b.notifyAudit)
	}
	return b, nil
}

// operatorEvents are audit events mirrored to the notification channel.
var operatorEvents = map[string]string{
	"user_blocked":          "Player blocked",
	"user_unblocked":        "Player unblocked",
	"game_controls_updated": "Game controls updated",
	"review_resolved":       "Review flag resolved",
}

func (b *Bot) notifyAudit(ctx context.Context, entry storage.AuditLog) {
	title, ok := operatorEvents[entry.Event]
	if !ok {
		return
	}
	fields := []notify.Field{{Name: "Details", Value: entry.Details}}
	if entry.UserID != "" {
		fields = append(fields, notify.Field{Name: "User", Value: "<@" + entry.UserID + ">", Inline: true})
	}
	if entry.GameType != "" {
		fields = append(fields, notify.Field{Name: "Game", Value: entry.GameType, Inline: true})
	}
	b.dispatcher.Notify(ctx, notify.Message{
		Kind:      "audit_" + entry.Event,
		Title:     title,
		Severity:  notify.SeverityInfo,
		Fields:    fields,
		Timestamp: entry.CreatedAt,
	})
}

func (b *Bot) Start() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onInteractionCreate)

	if err := b.session.Open(); err != nil {
		return err
	}
	if err := b.registerCommands(); err != nil {
		return err
	}

	if b.dispatcher != nil {
		if b.cfg.NotificationChannel == "" {
			b.logger.Warn("no notification channel configured, operator alerts will be dropped")
		} else {
			b.dispatcher.SetSink(notify.NewDiscordSink(b.session, b.cfg.NotificationChannel, b.cfg.Notifications.EmbedColors))
		}
	}
	return nil
}

func (b *Bot) Close() {
	if b.dispatcher != nil {
		b.dispatcher.SetSink(nil)
	}
	if b.session != nil {
		_ = b.session.Close()
	}
}

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("discord ready", zap.String("user", session.State.User.Username))
}

func (b *Bot) respond(session *discordgo.Session, interaction *discordgo.InteractionCreate, content string, ephemeral bool) {
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	_ = session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   flags,
		},
	})
}

func (b *Bot) respondEmbed(session *discordgo.Session, interaction *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, ephemeral bool) {
	if embed == nil {
		b.respond(session, interaction, "No response available.", ephemeral)
		return
	}
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	_ = session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  flags,
		},
	})
}

func commandEmbed(title, description string, color int, fields []*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields:      fields,
	}
}

func statusFields(status economy.SystemStatus, snapshot *health.Snapshot) []*discordgo.MessageEmbedField {
	emergency := "off"
	if status.EmergencyMode {
		emergency = "on"
		if status.ManualOverride {
			emergency = "on (manual)"
		}
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "Emergency mode", Value: emergency, Inline: true},
		{Name: "Health score", Value: fmt.Sprintf("%.1f", status.HealthScore), Inline: true},
		{Name: "Tracked users", Value: fmt.Sprintf("%d", status.TrackedUsers), Inline: true},
		{Name: "Blocked users", Value: fmt.Sprintf("%d", status.BlockedUsers), Inline: true},
		{Name: "Flagged users", Value: fmt.Sprintf("%d", status.FlaggedUsers), Inline: true},
	}
	if status.EmergencyMode && status.EmergencyReason != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Reason", Value: status.EmergencyReason})
	}
	if snapshot != nil {
		fields = append(fields,
			&discordgo.MessageEmbedField{Name: "Gini", Value: fmt.Sprintf("%.3f", snapshot.Gini), Inline: true},
			&discordgo.MessageEmbedField{Name: "Top 1% share", Value: fmt.Sprintf("%.1f%%", snapshot.Concentration*100), Inline: true},
			&discordgo.MessageEmbedField{Name: "House edge", Value: fmt.Sprintf("%.2f%%", snapshot.HouseEdge*100), Inline: true},
			&discordgo.MessageEmbedField{Name: "Velocity", Value: fmt.Sprintf("%.2f", snapshot.Velocity), Inline: true},
			&discordgo.MessageEmbedField{Name: "Total wealth", Value: fmt.Sprintf("%d", snapshot.TotalWealth), Inline: true},
			&discordgo.MessageEmbedField{Name: "Last analysis", Value: fmt.Sprintf("<t:%d:R>", snapshot.At.Unix()), Inline: true},
		)
	}
	return fields
}

func gameFields(gameType string, control config.GameControl, rtp float64) []*discordgo.MessageEmbedField {
	return []*discordgo.MessageEmbedField{
		{Name: "Game", Value: gameType, Inline: true},
		{Name: "Max bet", Value: fmt.Sprintf("%d", control.MaxBet), Inline: true},
		{Name: "Edge adjustment", Value: fmt.Sprintf("%.2f%%", control.HouseEdgeAdjustment*100), Inline: true},
		{Name: "Payout reduction", Value: fmt.Sprintf("%.0f%%", control.MultiplierReduction*100), Inline: true},
		{Name: "Effective RTP", Value: fmt.Sprintf("%.2f%%", rtp*100), Inline: true},
	}
}

func gameListLines(controls map[string]config.GameControl) string {
	if len(controls) == 0 {
		return "No game overrides configured."
	}
	games := make([]string, 0, len(controls))
	for game := range controls {
		games = append(games, game)
	}
	sort.Strings(games)
	lines := make([]string, 0, len(games))
	for _, game := range games {
		control := controls[game]
		lines = append(lines, fmt.Sprintf("`%s` max bet %d, edge +%.2f%%, reduction %.0f%%", game, control.MaxBet, control.HouseEdgeAdjustment*100, control.MultiplierReduction*100))
	}
	return strings.Join(lines, "\n")
}

func profileFields(userID string, profile risk.Profile, blocked bool, limit *risk.Limit, restriction *risk.Restriction) []*discordgo.MessageEmbedField {
	fields := []*discordgo.MessageEmbedField{
		{Name: "User", Value: "<@" + userID + ">", Inline: true},
		{Name: "Risk score", Value: fmt.Sprintf("%.0f", profile.RiskScore), Inline: true},
		{Name: "Blocked", Value: fmt.Sprintf("%t", blocked), Inline: true},
		{Name: "Recorded actions", Value: fmt.Sprintf("%d", len(profile.Actions)), Inline: true},
	}
	var patterns []string
	for game, found := range profile.Patterns {
		if len(found) == 0 {
			continue
		}
		patterns = append(patterns, game+": "+strings.Join(found, ", "))
	}
	if len(patterns) > 0 {
		sort.Strings(patterns)
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Patterns", Value: strings.Join(patterns, "\n")})
	}
	if limit != nil {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Reduced limit", Value: fmt.Sprintf("%d until <t:%d:R>", limit.MaxBet, limit.Expires.Unix())})
	}
	if restriction != nil {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Restriction", Value: fmt.Sprintf("%s until <t:%d:R>", restriction.Type, restriction.EndTime.Unix())})
	}
	return fields
}

func reviewLines(flags []storage.ReviewFlag) string {
	if len(flags) == 0 {
		return "No open review flags."
	}
	lines := make([]string, 0, len(flags))
	for _, flag := range flags {
		lines = append(lines, fmt.Sprintf("`%s` <@%s> %s score %.0f: %s", flag.ID, flag.UserID, flag.GameType, flag.RiskScore, flag.Reason))
	}
	return strings.Join(lines, "\n")
}

func formatReport(report analytics.Report) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Total: %d | INFO: %d | WARN: %d | CRIT: %d", report.Total, report.ByLevel[audit.LevelInfo], report.ByLevel[audit.LevelWarn], report.ByLevel[audit.LevelCrit])
	fmt.Fprintf(&sb, "\nOpen reviews: %d", report.OpenReview)
	for _, event := range report.TopEvents(5) {
		fmt.Fprintf(&sb, "\n%s: %d", event.Event, event.Count)
	}
	if len(report.ByGame) > 0 {
		games := make([]string, 0, len(report.ByGame))
		for game, count := range report.ByGame {
			games = append(games, fmt.Sprintf("%s %d", game, count))
		}
		sort.Strings(games)
		fmt.Fprintf(&sb, "\nBy game: %s", strings.Join(games, ", "))
	}
	return sb.String()
}
