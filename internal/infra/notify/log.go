package notify

import (
	"context"
	"log/slog"
)

// LogNotifier writes confirmation links to the log instead of sending mail.
// It is the default for local setups.
type LogNotifier struct {
	Log *slog.Logger
}

func (n LogNotifier) SendConfirmation(ctx context.Context, email, link string) error {
	l := n.Log
	if l == nil {
		l = slog.Default()
	}
	l.InfoContext(ctx, "confirmation link issued", "email", email, "link", link)
	return nil
}
