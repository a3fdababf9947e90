package services

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/normgate/normgate-backend/internal/pkg/logger"
	"github.com/normgate/normgate-backend/internal/platform/mailer"
	"github.com/normgate/normgate-backend/internal/types"
)

// ReviewNotifier emits notification intents for the alignment workflow.
// Delivery is fire-and-forget: failures are logged and never surface to the
// state changes that triggered them.
type ReviewNotifier interface {
	ReviewRequested(ctx context.Context, reviewers []*types.User, release *types.Release)
	ReviewReminder(ctx context.Context, reviewers []*types.User, release *types.Release)
}

type mailNotifier struct {
	log    *logger.Logger
	client mailer.Client
}

func NewMailNotifier(log *logger.Logger, client mailer.Client) ReviewNotifier {
	return &mailNotifier{
		log:    log.With("service", "MailNotifier"),
		client: client,
	}
}

func (n *mailNotifier) ReviewRequested(ctx context.Context, reviewers []*types.User, release *types.Release) {
	subject := fmt.Sprintf("Review requested: release %s (%s)", release.Version, release.Name)
	body := fmt.Sprintf(
		"Release %s (%s) has entered review. Please assess every changed requirement and submit your review.",
		release.Version, release.Name,
	)
	n.fanOut(ctx, reviewers, subject, body)
}

func (n *mailNotifier) ReviewReminder(ctx context.Context, reviewers []*types.User, release *types.Release) {
	subject := fmt.Sprintf("Reminder: review of release %s is still open", release.Version)
	body := fmt.Sprintf(
		"Your review of release %s (%s) is not complete yet. Please finish your assessments.",
		release.Version, release.Name,
	)
	n.fanOut(ctx, reviewers, subject, body)
}

// fanOut sends one mail per reviewer concurrently. Errors are collected into
// the log only.
func (n *mailNotifier) fanOut(ctx context.Context, reviewers []*types.User, subject, body string) {
	if n == nil || n.client == nil || len(reviewers) == 0 {
		return
	}
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(8)
	for _, reviewer := range reviewers {
		addr := mailer.EmailAddress{Email: reviewer.Email, Name: reviewer.FirstName + " " + reviewer.LastName}
		group.Go(func() error {
			if err := n.client.Send(groupCtx, mailer.SendEmailRequest{
				To:      []mailer.EmailAddress{addr},
				Subject: subject,
				Text:    body,
			}); err != nil {
				n.log.Warn("Notification delivery failed", "recipient_email", addr.Email, "error", err)
			}
			return nil
		})
	}
	_ = group.Wait()
}

// logNotifier is the dev/local stand-in when no mail API is configured.
type logNotifier struct {
	log *logger.Logger
}

func NewLogNotifier(log *logger.Logger) ReviewNotifier {
	return &logNotifier{log: log.With("service", "LogNotifier")}
}

func (n *logNotifier) ReviewRequested(ctx context.Context, reviewers []*types.User, release *types.Release) {
	n.log.Info("Review requested (mail disabled)", "release_version", release.Version, "reviewers", len(reviewers))
}

func (n *logNotifier) ReviewReminder(ctx context.Context, reviewers []*types.User, release *types.Release) {
	n.log.Info("Review reminder (mail disabled)", "release_version", release.Version, "reviewers", len(reviewers))
}
