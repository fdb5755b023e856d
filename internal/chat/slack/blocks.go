package slack

import (
	"encoding/json"
	"fmt"
	"strings"

	slackapi "github.com/slack-go/slack"

	"github.com/jantman/claude-permission-daemon/internal/chat"
)

// Button action IDs carried in the interactive payload. The button value
// is the request ID.
const (
	actionApprove = "approve_permission"
	actionDeny    = "deny_permission"
)

// Display truncation limits.
const (
	maxContentChars = 200
	maxInputChars   = 500
	maxMessageChars = 500
	maxShortChars   = 100
	maxCWDChars     = 50
)

// notificationEmoji picks the header emoji for a notification type.
var notificationEmoji = map[string]string{
	"idle_prompt":        "⏳",
	"auth_success":       "🔑",
	"elicitation_dialog": "💬",
}

// requestBlocks renders a pending permission request with approve and deny
// buttons.
func requestBlocks(card chat.RequestCard) []slackapi.Block {
	blocks := []slackapi.Block{
		slackapi.NewHeaderBlock(plainText("🔐 Claude Code Permission Request")),
		slackapi.NewSectionBlock(markdown("*Tool:* "+card.ToolName), nil, nil),
		slackapi.NewSectionBlock(markdown(fenced(inputDisplay(card.ToolInput))), nil, nil),
	}

	if card.Description != "" {
		blocks = append(blocks,
			slackapi.NewSectionBlock(markdown("*Description:* "+card.Description), nil, nil))
	}

	blocks = append(blocks, slackapi.NewContextBlock("",
		markdown("Requested at "+card.CreatedAt.Format("15:04:05"))))

	approve := slackapi.NewButtonBlockElement(actionApprove, card.ID, plainText("✓ Approve")).
		WithStyle(slackapi.StylePrimary)
	deny := slackapi.NewButtonBlockElement(actionDeny, card.ID, plainText("✗ Deny")).
		WithStyle(slackapi.StyleDanger)
	blocks = append(blocks, slackapi.NewActionBlock("", approve, deny))

	return blocks
}

// resolvedBlocks renders the final, button-free form of a request card.
// The second return is the client-notification fallback text.
func resolvedBlocks(card chat.RequestCard, outcome chat.Outcome) ([]slackapi.Block, string) {
	var header, footer, fallback string
	switch outcome {
	case chat.OutcomeApproved:
		header = "✅ Approved: " + card.ToolName
		footer = "Approved via Slack"
		fallback = "Approved: " + card.ToolName
	case chat.OutcomeDenied:
		header = "❌ Denied: " + card.ToolName
		footer = "Denied via Slack"
		fallback = "Denied: " + card.ToolName
	case chat.OutcomeAnsweredRemotely:
		header = "📱 Answered Remotely: " + card.ToolName
		footer = "Answered from another session"
		fallback = "Answered remotely: " + card.ToolName
	default:
		header = "⌨️ Answered Locally: " + card.ToolName
		footer = "You returned to your computer"
		fallback = "Answered locally: " + card.ToolName
	}

	blocks := []slackapi.Block{
		slackapi.NewHeaderBlock(plainText(header)),
		slackapi.NewSectionBlock(markdown(fenced(shortInputDisplay(card.ToolInput))), nil, nil),
		slackapi.NewContextBlock("", markdown(footer)),
	}
	return blocks, fallback
}

// notificationBlocks renders an informational notification without
// buttons.
func notificationBlocks(note chat.NotificationCard) ([]slackapi.Block, string) {
	emoji, ok := notificationEmoji[note.Type]
	if !ok {
		emoji = "📢"
	}

	blocks := []slackapi.Block{
		slackapi.NewHeaderBlock(plainText(fmt.Sprintf("%s Claude Code: %s", emoji, titleWords(note.Type)))),
	}

	if note.Message != "" {
		blocks = append(blocks,
			slackapi.NewSectionBlock(markdown(truncate(note.Message, maxMessageChars)), nil, nil))
	}

	footer := "Received at " + note.ReceivedAt.Format("15:04:05")
	if note.CWD != "" {
		footer += " • in `" + tailPath(note.CWD, maxCWDChars) + "`"
	}
	blocks = append(blocks, slackapi.NewContextBlock("", markdown(footer)))

	return blocks, "Notification: " + note.Type
}

// inputDisplay renders tool input for the request card. Commands show
// verbatim, file operations show the path plus a content preview, anything
// else shows as indented JSON.
func inputDisplay(input map[string]any) string {
	if cmd, ok := input["command"].(string); ok {
		return cmd
	}
	if path, ok := input["file_path"].(string); ok {
		display := path
		if content, ok := input["content"].(string); ok {
			display += "\n\n" + truncate(content, maxContentChars)
		}
		return display
	}
	return truncate(jsonIndent(input), maxInputChars)
}

// shortInputDisplay is the compact form used on resolved cards.
func shortInputDisplay(input map[string]any) string {
	if cmd, ok := input["command"].(string); ok {
		return cmd
	}
	if path, ok := input["file_path"].(string); ok {
		return path
	}
	return truncate(jsonCompact(input), maxShortChars)
}

func jsonIndent(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func jsonCompact(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// truncate caps s at max runes, marking the cut with an ellipsis.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// tailPath keeps the end of a long path, which is the interesting part.
func tailPath(path string, max int) string {
	runes := []rune(path)
	if len(runes) <= max {
		return path
	}
	return "..." + string(runes[len(runes)-(max-3):])
}

// titleWords turns a snake_case notification type into a display title.
func titleWords(s string) string {
	words := strings.Fields(strings.ReplaceAll(s, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func fenced(s string) string {
	return "```" + s + "```"
}

func plainText(s string) *slackapi.TextBlockObject {
	return slackapi.NewTextBlockObject(slackapi.PlainTextType, s, true, false)
}

func markdown(s string) *slackapi.TextBlockObject {
	return slackapi.NewTextBlockObject(slackapi.MarkdownType, s, false, false)
}
