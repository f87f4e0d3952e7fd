package emailsvc

import (
	"context"
	"net/mail"

	"github.com/pkg/errors"

	"github.com/cdlbuddy/cdltrainer/core"
	"github.com/cdlbuddy/cdltrainer/core/walkthrough"
)

const (
	submittedTemplate = "walkthrough_submitted"
	decisionTemplate  = "walkthrough_decision"
)

var subjects = map[walkthrough.NotificationKind]string{
	walkthrough.NotifySubmitted:        "Walkthrough submitted for review",
	walkthrough.NotifyChangesRequested: "Changes requested on your walkthrough",
	walkthrough.NotifyRejected:         "Your walkthrough was rejected",
	walkthrough.NotifyPublished:        "Your walkthrough was published",
}

type notificationData struct {
	ID     string
	Label  string
	Token  string
	Status walkthrough.Status
	Actor  string
	Notes  string
}

// Notifier emails reviewers about submissions and authors about decisions.
type Notifier struct {
	mailer    core.EmailService
	reviewers []mail.Address
}

var _ walkthrough.Notifier = (*Notifier)(nil)

func NewNotifier(conf *core.Config, mailer core.EmailService) *Notifier {
	return &Notifier{mailer: mailer, reviewers: conf.ReviewerEmails}
}

func (n *Notifier) Notify(ctx context.Context, note walkthrough.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject, ok := subjects[note.Kind]
	if !ok {
		return errors.Errorf("unknown notification kind %q", note.Kind)
	}

	actor := note.Actor.Email
	if actor == "" {
		actor = note.Actor.ID
	}
	msg := &core.EmailMessage{
		Subject: subject,
		TemplateData: notificationData{
			ID:     note.Document.ID,
			Label:  note.Document.Label,
			Token:  note.Document.Token,
			Status: note.Document.Status,
			Actor:  actor,
			Notes:  note.Note,
		},
	}

	if note.Kind == walkthrough.NotifySubmitted {
		if len(n.reviewers) == 0 {
			return nil
		}
		msg.To = n.reviewers
		msg.TemplateName = submittedTemplate
	} else {
		if note.Document.AuthorEmail == "" {
			return nil
		}
		to, err := mail.ParseAddress(note.Document.AuthorEmail)
		if err != nil {
			return errors.Wrapf(err, "author email of %s", note.Document.ID)
		}
		msg.To = []mail.Address{*to}
		msg.TemplateName = decisionTemplate
	}

	n.mailer.SendMessages(msg)
	return nil
}
