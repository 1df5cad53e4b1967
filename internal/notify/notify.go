// Package notify pushes one-line result summaries to chat integrations once
// an analysis reaches a terminal state.
package notify

import (
	"context"
	"fmt"
	"log"

	"github.com/stylewatch/stylewatch/internal/analysis"
)

// Notifier delivers a terminal snapshot to one destination.
type Notifier interface {
	// Name identifies the destination in logs.
	Name() string
	Notify(ctx context.Context, snap analysis.Snapshot) error
}

// Summary renders the one-line result message shared by all notifiers.
func Summary(snap analysis.Snapshot) string {
	switch snap.Status {
	case analysis.StatusCompleted:
		if snap.Target.Inline() {
			return fmt.Sprintf("StyleWatch: %s checked, %d violations, score %.1f",
				snap.Target, len(snap.Violations), snap.Score)
		}
		return fmt.Sprintf("StyleWatch: %s analyzed, %d violations",
			snap.Target, len(snap.Violations))
	case analysis.StatusFailed:
		return fmt.Sprintf("StyleWatch: analysis of %s failed: %s", snap.Target, snap.Err)
	default:
		return fmt.Sprintf("StyleWatch: analysis of %s is %s", snap.Target, snap.Status)
	}
}

// NotifyAll fans the snapshot out to every notifier. Delivery failures are
// logged, never returned: a missed chat message must not fail the run.
func NotifyAll(ctx context.Context, notifiers []Notifier, snap analysis.Snapshot) {
	for _, n := range notifiers {
		if err := n.Notify(ctx, snap); err != nil {
			log.Printf("%s: notification failed: %v", n.Name(), err)
		}
	}
}
