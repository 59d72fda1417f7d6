package notify

import (
	"context"
	"errors"
	"net/http"

	"github.com/slack-go/slack"
)

// SlackSink posts Block Kit messages to an incoming webhook.
type SlackSink struct {
	webhookURL string
	client     *http.Client
}

// NewSlackSink creates a sink posting to an incoming webhook. A nil client uses a default one.
func NewSlackSink(webhookURL string, client *http.Client) (*SlackSink, error) {
	if webhookURL == "" {
		return nil, errors.New("slack webhook URL is empty")
	}
	if client == nil {
		client = &http.Client{}
	}
	return &SlackSink{webhookURL: webhookURL, client: client}, nil
}

// Name implements Sink.
func (s *SlackSink) Name() string { return "slack" }

// Send posts msg as Block Kit blocks with a yr.no button when it has coordinates.
func (s *SlackSink) Send(ctx context.Context, msg Message) error {
	return slack.PostWebhookCustomHTTPContext(ctx, s.webhookURL, s.client, slackPayload(msg))
}

var severityIcons = map[Severity]string{
	SeverityInfo:    ":information_source:",
	SeverityWarning: ":warning:",
	SeverityDanger:  ":rotating_light:",
}

func slackPayload(msg Message) *slack.WebhookMessage {
	header := "*" + msg.Title + "*"
	if icon := severityIcons[msg.Severity]; icon != "" {
		header = icon + " " + header
	}
	blocks := []slack.Block{
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, header+"\n\n"+msg.Body, false, false), nil, nil),
	}
	if link := msg.Link(); link != "" {
		btn := slack.NewButtonBlockElement("open_forecast", "yr", slack.NewTextBlockObject(slack.PlainTextType, "Open forecast on yr.no", true, false))
		btn.URL = link
		btn.Style = slack.StylePrimary
		blocks = append(blocks, slack.NewActionBlock("", btn))
	}
	blocks = append(blocks, slack.NewContextBlock("", slack.NewTextBlockObject(slack.MarkdownType, "MET Norway forecast", false, false)))

	return &slack.WebhookMessage{
		Text:   msg.Title,
		Blocks: &slack.Blocks{BlockSet: blocks},
	}
}
