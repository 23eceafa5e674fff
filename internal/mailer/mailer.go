package mailer

import (
	"log"

	"whiteboard-backend/internal/model"
)

// Mailer is the external email collaborator. Invoked once per newly-added
// board member; delivery mechanics (templates, transport) live outside this
// core.
type Mailer interface {
	SendBoardInvite(board *model.Whiteboard, title string, member *model.User) error
}

// LogMailer is the default collaborator stand-in: it records the invitation
// instead of delivering it. Deployments plug a real sender in at wiring time.
type LogMailer struct{}

// SendBoardInvite logs the invitation
func (LogMailer) SendBoardInvite(board *model.Whiteboard, title string, member *model.User) error {
	log.Printf("[Mail] Invite to board %d (%q) for user %d <%s>", board.ID, title, member.ID, member.Email)
	return nil
}
