package automation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/abinesh-lmsace/pulse/core"
)

// ReactionIssuer mints the one-click reaction link embedded in a message body
// for instances with a reaction configured.
type ReactionIssuer interface {
	IssueLink(ctx context.Context, instanceID, activityID, userID int, typ string) (string, error)
}

// Dispatcher renders a reminder message and drives it through the
// claim/send/commit protocol against the delivery ledger.
type Dispatcher struct {
	deliverer core.Deliverer
	ledger    LedgerRepository
	logger    core.Logger
	reactions ReactionIssuer
	header    string // site-wide notification header, joined around every body
	footer    string
	siteURL   string
	timeout   time.Duration
	nowFunc   func() time.Time
}

func NewDispatcher(deliverer core.Deliverer, ledger LedgerRepository, logger core.Logger, timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		deliverer: deliverer,
		ledger:    ledger,
		logger:    logger,
		timeout:   timeout,
		nowFunc:   time.Now,
	}
}

// SetBranding installs the site header/footer and base URL substituted into
// every message.
func (d *Dispatcher) SetBranding(header, footer, siteURL string) {
	d.header, d.footer, d.siteURL = header, footer, siteURL
}

// SetReactionIssuer enables reaction links in outgoing messages.
func (d *Dispatcher) SetReactionIssuer(issuer ReactionIssuer) {
	d.reactions = issuer
}

// Send delivers one reminder. recipient is the user the message goes to;
// onBehalfOf, when non-nil, is the student a delegate is being notified about
// and supplies the template data and the ledger's for-user key.
//
// Protocol: claim the key, send, commit. A lost claim returns
// ErrClaimConflict (another worker owns the send). A failed send releases the
// claim and returns a DeliveryError; the recipient is retried on a later pass.
// Invitations run claim+send+commit inside one ledger transaction: the
// historical double-send bug came from a commit that was not atomic with the
// send, and that hardening is kept.
func (d *Dispatcher) Send(ctx context.Context, inst Instance, def ReminderDefinition, recipient User, onBehalfOf *User) error {
	key := DeliveryKey{InstanceID: inst.ID, UserID: recipient.ID, Type: def.Type}
	if onBehalfOf != nil {
		key.ForUserID = onBehalfOf.ID
	}

	reactionURL, err := d.reactionLink(ctx, inst, recipient, onBehalfOf)
	if err != nil {
		return err
	}
	msg := d.compose(inst, def, recipient, onBehalfOf, reactionURL)
	if !msg.HasRecipients() || !msg.HasContent() {
		return &ConfigurationError{InstanceID: inst.ID, Type: def.Type, Reason: "empty message after rendering"}
	}

	if def.Type == TypeInvitation {
		return d.ledger.Transact(ctx, func(ledger LedgerRepository) error {
			return d.claimSendCommit(ctx, ledger, key, msg)
		})
	}
	return d.claimSendCommit(ctx, d.ledger, key, msg)
}

func (d *Dispatcher) claimSendCommit(ctx context.Context, ledger LedgerRepository, key DeliveryKey, msg *core.EmailMessage) error {
	now := d.nowFunc().Truncate(time.Second)
	token := uuid.NewString()

	claimed, err := ledger.TryClaim(ctx, key, token, now)
	if err != nil {
		return errors.Wrap(err, "claiming delivery")
	}
	if !claimed {
		return ErrClaimConflict
	}

	sendCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	if err := d.deliverer.DeliverMessage(sendCtx, msg); err != nil {
		if relErr := ledger.Release(ctx, key, token); relErr != nil {
			d.logger.Error("releasing claim after failed send", relErr)
		}
		return &DeliveryError{Key: key, Err: err}
	}

	if err := ledger.Commit(ctx, key, token, d.nowFunc().Truncate(time.Second)); err != nil {
		return errors.Wrap(err, "committing delivery")
	}
	return nil
}

// reactionLink issues the one-click link for the student the message is
// about. Links minted for claims lost to another worker stay pending and are
// swept with the instance cascade.
func (d *Dispatcher) reactionLink(ctx context.Context, inst Instance, recipient User, onBehalfOf *User) (string, error) {
	if d.reactions == nil || inst.ReactionType == "" {
		return "", nil
	}
	about := recipient
	if onBehalfOf != nil {
		about = *onBehalfOf
	}
	link, err := d.reactions.IssueLink(ctx, inst.ID, inst.ActivityID, about.ID, inst.ReactionType)
	if err != nil {
		return "", errors.Wrap(err, "issuing reaction link")
	}
	return link, nil
}

// compose renders the message for the recipient. Template data always comes
// from the student the reminder is about, so a teacher reads their student's
// name in the body, not their own.
func (d *Dispatcher) compose(inst Instance, def ReminderDefinition, recipient User, onBehalfOf *User, reactionURL string) *core.EmailMessage {
	subject := def.Subject
	content := def.Content
	// Invitations reuse the activity's own name and body when blank.
	if def.Type == TypeInvitation {
		if subject == "" {
			subject = inst.Name
		}
		if content == "" {
			content = inst.Content
		}
	}

	about := recipient
	if onBehalfOf != nil {
		about = *onBehalfOf
	}
	tc := core.TemplateContext{
		UserFullName:  about.FullName(),
		UserFirstName: about.FirstName,
		UserLastName:  about.LastName,
		UserEmail:     about.Email,
		CourseName:    inst.Course.FullName,
		CourseShort:   inst.Course.ShortName,
		ActivityName:  inst.ActivityName,
		SiteURL:       d.siteURL,
		ReactionURL:   reactionURL,
	}

	msg := core.ComposeMessage(recipient.Address(), subject, content, d.header, d.footer, tc)
	msg.SenderID = inst.SenderID
	return msg
}
