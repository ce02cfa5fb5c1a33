package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"economy-sentinel/internal/economy"
	"economy-sentinel/internal/health"
	"economy-sentinel/internal/modules/audit"
	"economy-sentinel/internal/risk"
	"economy-sentinel/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func (b *Bot) onInteractionCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	if interaction.Type != discordgo.InteractionApplicationCommand {
		return
	}

	ctx := context.Background()
	data := interaction.ApplicationCommandData()
	colors := b.cfg.Notifications.EmbedColors
	if !isOperator(interaction) {
		b.respondEmbed(session, interaction, commandEmbed("Economy", "This command is restricted to administrators.", colors.Error, nil), true)
		return
	}
	operator := operatorID(interaction)
	options := optionMap(data.Options)

	switch data.Name {
	case "economy-status":
		status := b.economy.SystemStatus()
		var snapshot *health.Snapshot
		if b.analyzer != nil {
			if last, ok := b.analyzer.Last(); ok {
				snapshot = &last
			}
		}
		b.respondEmbed(session, interaction, commandEmbed("Economy status", "", colors.Action, statusFields(status, snapshot)), true)
	case "emergency":
		active := options["value"] != nil && options["value"].StringValue() == "on"
		reason := "manual override by " + operator
		if opt := options["reason"]; opt != nil && opt.StringValue() != "" {
			reason = opt.StringValue()
		}
		changed := b.economy.SetEmergencyMode(ctx, active, reason)
		description := "Emergency mode unchanged."
		if changed {
			description = fmt.Sprintf("Emergency mode turned %s.", options["value"].StringValue())
		}
		b.respondEmbed(session, interaction, commandEmbed("Emergency mode", description, colors.Action, statusFields(b.economy.SystemStatus(), nil)), true)
	case "game":
		b.handleGameCommand(ctx, session, interaction, options, operator)
	case "block":
		user := options["user"].UserValue(session)
		if user == nil {
			b.respondEmbed(session, interaction, commandEmbed("Block", "Unknown user.", colors.Error, nil), true)
			return
		}
		reason := "manual block by " + operator
		if opt := options["reason"]; opt != nil && opt.StringValue() != "" {
			reason = opt.StringValue()
		}
		b.risk.Block(ctx, user.ID, reason, operator)
		fields := []*discordgo.MessageEmbedField{{Name: "User", Value: "<@" + user.ID + ">", Inline: true}}
		b.respondEmbed(session, interaction, commandEmbed("Block", "Player blocked from gambling.", colors.Action, fields), true)
	case "unblock":
		user := options["user"].UserValue(session)
		if user == nil {
			b.respondEmbed(session, interaction, commandEmbed("Unblock", "Unknown user.", colors.Error, nil), true)
			return
		}
		description := "Player was not blocked."
		if b.risk.Unblock(ctx, user.ID, operator) {
			description = "Block lifted."
		}
		if opt := options["reset"]; opt != nil && opt.BoolValue() {
			b.risk.Reset(user.ID)
			description += " Risk profile cleared."
		}
		fields := []*discordgo.MessageEmbedField{{Name: "User", Value: "<@" + user.ID + ">", Inline: true}}
		b.respondEmbed(session, interaction, commandEmbed("Unblock", description, colors.Action, fields), true)
	case "risk":
		user := options["user"].UserValue(session)
		if user == nil {
			b.respondEmbed(session, interaction, commandEmbed("Risk profile", "Unknown user.", colors.Error, nil), true)
			return
		}
		profile, ok := b.risk.Profile(user.ID)
		if !ok {
			profile = risk.Profile{UserID: user.ID}
		}
		var limitPtr *risk.Limit
		if limit, ok := b.risk.ActiveLimit(user.ID); ok {
			limitPtr = &limit
		}
		var restrictionPtr *risk.Restriction
		if restriction, ok := b.risk.ActiveRestriction(user.ID); ok {
			restrictionPtr = &restriction
		}
		fields := profileFields(user.ID, profile, b.risk.IsBlocked(user.ID), limitPtr, restrictionPtr)
		b.respondEmbed(session, interaction, commandEmbed("Risk profile", "", colors.Action, fields), true)
	case "reviews":
		b.handleReviewsCommand(ctx, session, interaction, options, operator)
	case "report":
		period := 24 * time.Hour
		title := "Daily report"
		if opt := options["period"]; opt != nil && opt.StringValue() == "week" {
			period = 7 * 24 * time.Hour
			title = "Weekly report"
		}
		report, err := b.analytics.Report(ctx, time.Now().Add(-period))
		if err != nil {
			b.logger.Warn("report failed", zap.Error(err))
			b.respondEmbed(session, interaction, commandEmbed(title, "Report unavailable.", colors.Error, nil), true)
			return
		}
		b.respondEmbed(session, interaction, commandEmbed(title, formatReport(report), colors.Action, nil), true)
	}
}

func (b *Bot) handleGameCommand(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options map[string]*discordgo.ApplicationCommandInteractionDataOption, operator string) {
	colors := b.cfg.Notifications.EmbedColors
	var gameType string
	if opt := options["name"]; opt != nil {
		gameType = opt.StringValue()
	}
	if gameType == "" {
		b.respondEmbed(session, interaction, commandEmbed("Game controls", gameListLines(b.economy.GameControls()), colors.Action, nil), true)
		return
	}

	update := economy.GameControlUpdate{}
	changed := false
	if opt := options["max_bet"]; opt != nil {
		value := opt.IntValue()
		update.MaxBet = &value
		changed = true
	}
	if opt := options["house_edge_adjustment"]; opt != nil {
		value := opt.FloatValue()
		update.HouseEdgeAdjustment = &value
		changed = true
	}
	if opt := options["multiplier_reduction"]; opt != nil {
		value := opt.FloatValue()
		update.MultiplierReduction = &value
		changed = true
	}

	if !changed {
		b.respondEmbed(session, interaction, commandEmbed("Game controls", "", colors.Action, gameFields(gameType, b.economy.GameControl(gameType), b.economy.RTP(gameType))), true)
		return
	}
	control, err := b.economy.UpdateGameControls(ctx, gameType, update, operator)
	if err != nil {
		b.logger.Warn("game control update failed", zap.String("game", gameType), zap.Error(err))
		b.respondEmbed(session, interaction, commandEmbed("Game controls", err.Error(), colors.Error, nil), true)
		return
	}
	b.respondEmbed(session, interaction, commandEmbed("Game controls", "Controls updated.", colors.Action, gameFields(gameType, control, b.economy.RTP(gameType))), true)
}

func (b *Bot) handleReviewsCommand(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options map[string]*discordgo.ApplicationCommandInteractionDataOption, operator string) {
	colors := b.cfg.Notifications.EmbedColors
	action := options["action"].StringValue()

	switch action {
	case "list":
		flags, err := b.store.ListReviewFlags(ctx, storage.ReviewOpen, 10)
		if err != nil {
			b.logger.Warn("list review flags failed", zap.Error(err))
			b.respondEmbed(session, interaction, commandEmbed("Review queue", "Review queue unavailable.", colors.Error, nil), true)
			return
		}
		b.respondEmbed(session, interaction, commandEmbed("Review queue", reviewLines(flags), colors.Action, nil), true)
	case "resolve":
		opt := options["id"]
		if opt == nil || opt.StringValue() == "" {
			b.respondEmbed(session, interaction, commandEmbed("Review queue", "Provide the review flag ID.", colors.Error, nil), true)
			return
		}
		id := opt.StringValue()
		if err := b.store.ResolveReviewFlag(ctx, id, operator); err != nil {
			description := "Could not resolve review flag."
			if errors.Is(err, storage.ErrReviewNotFound) {
				description = "No open review flag with that ID."
			}
			b.respondEmbed(session, interaction, commandEmbed("Review queue", description, colors.Error, nil), true)
			return
		}
		b.audit.Record(ctx, audit.Entry{Level: audit.LevelInfo, Event: "review_resolved", Details: fmt.Sprintf("%s by %s", id, operator)})
		b.respondEmbed(session, interaction, commandEmbed("Review queue", "Review flag resolved.", colors.Action, nil), true)
	default:
		b.respondEmbed(session, interaction, commandEmbed("Review queue", "Unknown action.", colors.Error, nil), true)
	}
}

func optionMap(options []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	out := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, opt := range options {
		out[opt.Name] = opt
	}
	return out
}

func isOperator(interaction *discordgo.InteractionCreate) bool {
	if interaction.Member == nil {
		return false
	}
	return interaction.Member.Permissions&discordgo.PermissionAdministrator != 0
}

func operatorID(interaction *discordgo.InteractionCreate) string {
	if interaction.Member != nil && interaction.Member.User != nil {
		return interaction.Member.User.ID
	}
	if interaction.User != nil {
		return interaction.User.ID
	}
	return ""
}
