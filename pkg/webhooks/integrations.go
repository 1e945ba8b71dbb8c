package webhooks

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Target identifies the chat service behind a webhook URL
type Target string

const (
	TargetSlack   Target = "slack"
	TargetDiscord Target = "discord"
	TargetTeams   Target = "teams"
	TargetGeneric Target = "generic"
)

// DetectTarget infers the payload format from the webhook URL
func DetectTarget(url string) Target {
	switch {
	case strings.HasPrefix(url, "https://hooks.slack.com"):
		return TargetSlack
	case strings.HasPrefix(url, "https://discord.com/api/webhooks"):
		return TargetDiscord
	case strings.Contains(url, "webhook.office.com"):
		return TargetTeams
	default:
		return TargetGeneric
	}
}

// SlackMessage represents a Slack incoming-webhook message
type SlackMessage struct {
	Text string `json:"text"`
}

// DiscordMessage represents a Discord webhook message
type DiscordMessage struct {
	Content string `json:"content"`
}

// TeamsMessage represents a Microsoft Teams connector card
type TeamsMessage struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	ThemeColor string         `json:"themeColor"`
	Summary    string         `json:"summary"`
	Sections   []TeamsSection `json:"sections"`
}

// TeamsSection represents a section in a Teams card
type TeamsSection struct {
	ActivityTitle    string      `json:"activityTitle"`
	ActivitySubtitle string      `json:"activitySubtitle"`
	ActivityImage    string      `json:"activityImage,omitempty"`
	Facts            []TeamsFact `json:"facts"`
	Markdown         bool        `json:"markdown"`
}

// TeamsFact represents a name/value row in a Teams section
type TeamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Branding is shown in rich cards
type Branding struct {
	AppName    string
	AppVersion string
	IconURL    string
}

// BuildPayload shapes event for the given target
func BuildPayload(target Target, event *Event, brand Branding) interface{} {
	switch target {
	case TargetSlack:
		return SlackMessage{Text: event.Message}
	case TargetDiscord:
		return DiscordMessage{Content: event.Message}
	case TargetTeams:
		return FormatTeamsMessage(event, brand)
	default:
		return event
	}
}

// FormatTeamsMessage renders event as a Teams card with one fact per user field
func FormatTeamsMessage(event *Event, brand Branding) TeamsMessage {
	return TeamsMessage{
		Type:       "MessageCard",
		Context:    "http://schema.org/extensions",
		ThemeColor: "0076D7",
		Summary:    event.Message,
		Sections: []TeamsSection{
			{
				ActivityTitle:    event.Message,
				ActivitySubtitle: fmt.Sprintf("%s (%s) - %s", brand.AppName, brand.AppVersion, event.Action),
				ActivityImage:    brand.IconURL,
				Facts:            userFacts(event.User),
				Markdown:         true,
			},
		},
	}
}

func userFacts(userJSON string) []TeamsFact {
	facts := []TeamsFact{}
	if userJSON == "" {
		return facts
	}

	var fields map[string]interface{}
	dec := json.NewDecoder(strings.NewReader(userJSON))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return facts
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		facts = append(facts, TeamsFact{Name: name, Value: fmt.Sprint(fields[name])})
	}
	return facts
}
