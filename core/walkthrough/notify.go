package walkthrough

import "context"

// NotificationKind names a workflow event worth telling people about.
type NotificationKind string

const (
	NotifySubmitted        NotificationKind = "submitted"
	NotifyChangesRequested NotificationKind = "changes-requested"
	NotifyRejected         NotificationKind = "rejected"
	NotifyPublished        NotificationKind = "published"
)

type Notification struct {
	Kind     NotificationKind
	Document Document
	Actor    Actor
	Note     string
}

// Notifier is told about applied transitions. Failures never undo a transition.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Notification) error { return nil }

func notificationKind(action Action) (NotificationKind, bool) {
	switch action {
	case ActionSubmit, ActionResubmit:
		return NotifySubmitted, true
	case ActionRequestChanges:
		return NotifyChangesRequested, true
	case ActionReject:
		return NotifyRejected, true
	case ActionApprove:
		return NotifyPublished, true
	}
	return "", false
}
