package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"github.com/stylewatch/stylewatch/internal/analysis"
)

// maxSlackViolations caps the attachment so large runs do not flood the
// channel.
const maxSlackViolations = 10

// Slack posts result summaries to one Slack channel.
type Slack struct {
	api     *slack.Client
	channel string
}

// NewSlack creates a Slack notifier posting to the given channel.
func NewSlack(botToken, channel string) *Slack {
	return &Slack{api: slack.New(botToken), channel: channel}
}

func (s *Slack) Name() string { return "slack" }

// Notify posts the summary, attaching the top violations when the analysis
// completed with findings.
func (s *Slack) Notify(ctx context.Context, snap analysis.Snapshot) error {
	opts := []slack.MsgOption{slack.MsgOptionText(Summary(snap), false)}
	if snap.Status == analysis.StatusCompleted && len(snap.Violations) > 0 {
		opts = append(opts, slack.MsgOptionAttachments(slack.Attachment{
			Color: "warning",
			Text:  violationList(snap.Violations),
		}))
	}
	if _, _, err := s.api.PostMessageContext(ctx, s.channel, opts...); err != nil {
		return fmt.Errorf("posting to %s: %w", s.channel, err)
	}
	return nil
}

func violationList(vs []analysis.Violation) string {
	var b strings.Builder
	for i, v := range vs {
		if i == maxSlackViolations {
			fmt.Fprintf(&b, "... and %d more", len(vs)-i)
			break
		}
		fmt.Fprintf(&b, "%s:%d %s\n", v.FilePath, v.LineNumber, v.Message)
	}
	return strings.TrimRight(b.String(), "\n")
}
