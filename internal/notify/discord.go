package notify

import (
	"context"
	"errors"

	"economy-sentinel/internal/config"

	"github.com/bwmarrin/discordgo"
)

const maxEmbedFields = 25

// DiscordSink posts messages as embeds to a single operator channel.
type DiscordSink struct {
	session   *discordgo.Session
	channelID string
	colors    config.EmbedColors
}

func NewDiscordSink(session *discordgo.Session, channelID string, colors config.EmbedColors) *DiscordSink {
	return &DiscordSink{session: session, channelID: channelID, colors: colors}
}

func (s *DiscordSink) Send(ctx context.Context, msg Message) error {
	if s.channelID == "" {
		return errors.New("notification channel not configured")
	}
	_, err := s.session.ChannelMessageSendEmbed(s.channelID, BuildEmbed(msg, s.colors), discordgo.WithContext(ctx))
	return err
}

func BuildEmbed(msg Message, colors config.EmbedColors) *discordgo.MessageEmbed {
	// The palette's Warning is red and Error is orange, so critical notices
	// take the Warning color.
	color := colors.Action
	switch msg.Severity {
	case SeverityWarning:
		color = colors.Error
	case SeverityCritical:
		color = colors.Warning
	}

	fields := make([]*discordgo.MessageEmbedField, 0, len(msg.Fields))
	for _, field := range msg.Fields {
		if len(fields) == maxEmbedFields {
			break
		}
		value := field.Value
		if value == "" {
			value = "-"
		}
		fields = append(fields, &discordgo.MessageEmbedField{Name: field.Name, Value: value, Inline: field.Inline})
	}

	return &discordgo.MessageEmbed{
		Title:       msg.Title,
		Description: msg.Description,
		Color:       color,
		Fields:      fields,
		Timestamp:   msg.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
		Footer:      &discordgo.MessageEmbedFooter{Text: "Economy Sentinel • " + msg.Kind},
	}
}
