package walkthrough

// nextStatus returns the status a document moves to when action is applied in status from.
// ok is false when the action is not allowed in that status.
func nextStatus(action Action, from Status) (to Status, ok bool) {
	switch action {
	case ActionEdit:
		return from, from.Editable()
	case ActionSubmit:
		if from == StatusDraft || from == StatusChangesRequested {
			return StatusInReview, true
		}
	case ActionResubmit:
		if from == StatusChangesRequested {
			return StatusInReview, true
		}
	case ActionApprove:
		if from == StatusInReview {
			return StatusPublished, true
		}
	case ActionRequestChanges:
		if from == StatusInReview {
			return StatusChangesRequested, true
		}
	case ActionReject:
		if from == StatusInReview {
			return StatusRejected, true
		}
	case ActionArchive:
		if from == StatusPublished {
			return StatusArchived, true
		}
	case ActionDelete:
		switch from {
		case StatusDraft, StatusChangesRequested, StatusRejected:
			return from, true
		}
	case ActionDuplicate:
		return StatusDraft, true
	}
	return from, false
}

// guarded reports whether the action requires the script to validate.
func guarded(action Action) bool {
	switch action {
	case ActionSubmit, ActionResubmit, ActionApprove:
		return true
	}
	return false
}

// inScope reports whether the document belongs to the actor's organization
// (platform staff without an organization own the default documents).
func inScope(a Actor, d Document) bool {
	return a.IsSuperAdmin() || d.OrganizationID.String == a.OrganizationID
}

// canRead reports whether the document is visible to the actor.
// Published documents of the actor's organization and published defaults are visible to everyone.
func canRead(a Actor, d Document) bool {
	if d.Status == StatusPublished && (!d.OrganizationID.Valid || d.OrganizationID.String == a.OrganizationID) {
		return true
	}
	return inScope(a, d) && (a.CanAuthor() || a.CanReview())
}

func canWrite(a Actor, d Document) bool {
	if !a.CanAuthor() || !inScope(a, d) {
		return false
	}
	// default content belongs to the platform
	return d.OrganizationID.Valid || a.IsSuperAdmin()
}

func canReview(a Actor, d Document) bool {
	return a.CanReview() && inScope(a, d)
}

// authorize checks the actor's role and organization against the action.
func authorize(a Actor, d Document, action Action) error {
	var ok bool
	switch action {
	case ActionEdit, ActionSubmit, ActionResubmit, ActionDelete:
		ok = canWrite(a, d)
	case ActionApprove, ActionRequestChanges, ActionReject:
		ok = canReview(a, d)
	case ActionDuplicate, ActionCreate:
		ok = a.CanAuthor()
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}
