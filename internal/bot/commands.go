package bot

import "github.com/bwmarrin/discordgo"

var operatorPermission int64 = discordgo.PermissionAdministrator

func commandDefinitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:                     "economy-status",
			Description:              "Show economy health and risk tracking status",
			DefaultMemberPermissions: &operatorPermission,
		},
		{
			Name:                     "emergency",
			Description:              "Turn emergency mode on or off",
			DefaultMemberPermissions: &operatorPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "value",
					Description: "on or off",
					Required:    true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "on", Value: "on"},
						{Name: "off", Value: "off"},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "reason",
					Description: "Reason recorded in the audit log",
					Required:    false,
				},
			},
		},
		{
			Name:                     "game",
			Description:              "View or update limits for a game",
			DefaultMemberPermissions: &operatorPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "name",
					Description: "Game type, for example blackjack. Leave empty to list all games",
					Required:    false,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "max_bet",
					Description: "Maximum bet",
					Required:    false,
					MinValue:    floatPtr(1),
				},
				{
					Type:        discordgo.ApplicationCommandOptionNumber,
					Name:        "house_edge_adjustment",
					Description: "Extra house edge on top of the game default",
					Required:    false,
				},
				{
					Type:        discordgo.ApplicationCommandOptionNumber,
					Name:        "multiplier_reduction",
					Description: "Base payout reduction (0 to 0.8)",
					Required:    false,
					MinValue:    floatPtr(0),
					MaxValue:    0.8,
				},
			},
		},
		{
			Name:                     "block",
			Description:              "Block a player from gambling pending review",
			DefaultMemberPermissions: &operatorPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "Player to block",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "reason",
					Description: "Reason recorded in the audit log",
					Required:    false,
				},
			},
		},
		{
			Name:                     "unblock",
			Description:              "Lift a gambling block",
			DefaultMemberPermissions: &operatorPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "Player to unblock",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "reset",
					Description: "Also clear the player's risk profile",
					Required:    false,
				},
			},
		},
		{
			Name:                     "risk",
			Description:              "Show a player's risk profile",
			DefaultMemberPermissions: &operatorPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "Player to inspect",
					Required:    true,
				},
			},
		},
		{
			Name:                     "reviews",
			Description:              "List or resolve review flags",
			DefaultMemberPermissions: &operatorPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "action",
					Description: "list or resolve",
					Required:    true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "list", Value: "list"},
						{Name: "resolve", Value: "resolve"},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "id",
					Description: "Review flag ID to resolve",
					Required:    false,
				},
			},
		},
		{
			Name:                     "report",
			Description:              "Summarize audit activity",
			DefaultMemberPermissions: &operatorPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "period",
					Description: "day or week",
					Required:    false,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "day", Value: "day"},
						{Name: "week", Value: "week"},
					},
				},
			},
		},
	}
}

func (b *Bot) registerCommands() error {
	commands := commandDefinitions()

	appID := b.session.State.User.ID
	existing, err := b.session.ApplicationCommands(appID, "")
	if err != nil {
		for _, cmd := range commands {
			if _, err := b.session.ApplicationCommandCreate(appID, "", cmd); err != nil {
				return err
			}
		}
		return nil
	}

	existingByName := make(map[string]*discordgo.ApplicationCommand)
	for _, cmd := range existing {
		existingByName[cmd.Name] = cmd
	}

	desired := make(map[string]struct{})
	for _, cmd := range commands {
		desired[cmd.Name] = struct{}{}
		if current, ok := existingByName[cmd.Name]; ok {
			if _, err := b.session.ApplicationCommandEdit(appID, "", current.ID, cmd); err != nil {
				return err
			}
			continue
		}
		if _, err := b.session.ApplicationCommandCreate(appID, "", cmd); err != nil {
			return err
		}
	}

	for _, cmd := range existing {
		if _, ok := desired[cmd.Name]; ok {
			continue
		}
		_ = b.session.ApplicationCommandDelete(appID, "", cmd.ID)
	}
	return nil
}

func floatPtr(v float64) *float64 {
	return &v
}
