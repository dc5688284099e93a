package reaction

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

type Service struct {
	secret  []byte
	expiry  time.Duration
	siteURL string
	repo    Repository
	sink    Sink
}

func NewService(secret []byte, expiry time.Duration, siteURL string, repo Repository, sink Sink) *Service {
	return &Service{
		secret:  secret,
		expiry:  expiry,
		siteURL: siteURL,
		repo:    repo,
		sink:    sink,
	}
}

// Issue creates a pending reaction record and returns the signed link to
// embed in the outgoing message.
func (svc *Service) Issue(ctx context.Context, instanceID, activityID, userID int, typ Type) (Record, string, error) {
	if !typ.Valid() {
		return Record{}, "", errors.Errorf("unknown reaction type %q", typ)
	}
	rec := Record{
		InstanceID: instanceID,
		ActivityID: activityID,
		UserID:     userID,
		Type:       typ,
		Status:     StatusPending,
		CreatedAt:  nowFunc(),
	}
	if err := svc.repo.CreateRecord(ctx, &rec); err != nil {
		return Record{}, "", errors.Wrap(err, "creating reaction record")
	}
	return rec, svc.link(rec), nil
}

// IssueLink issues a reaction for the user and returns only the signed link.
// It satisfies the dispatcher's issuer contract with a plain string type.
func (svc *Service) IssueLink(ctx context.Context, instanceID, activityID, userID int, typ string) (string, error) {
	_, link, err := svc.Issue(ctx, instanceID, activityID, userID, Type(typ))
	return link, err
}

// Apply verifies the token and applies the reaction's effect once. Replays
// return ErrAlreadyApplied. Rating is only read for TypeRate.
func (svc *Service) Apply(ctx context.Context, rid, token string, rating int) error {
	id, err := decodeRecordID(rid)
	if err != nil {
		return ErrInvalidToken
	}
	rec, err := svc.repo.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	if err = verifyToken(svc.secret, rec, token, svc.expiry); err != nil {
		return err
	}
	if rec.Status == StatusApplied {
		return ErrAlreadyApplied
	}

	switch rec.Type {
	case TypeComplete:
		err = svc.sink.MarkCompleted(ctx, rec.ActivityID, rec.UserID)
	case TypeApprove:
		err = svc.sink.Approve(ctx, rec.ActivityID, rec.UserID)
	case TypeRate:
		err = svc.sink.Rate(ctx, rec.ActivityID, rec.UserID, rating)
	default:
		return errors.Errorf("unknown reaction type %q", rec.Type)
	}
	if err != nil {
		return errors.Wrapf(err, "applying %s reaction %d", rec.Type, rec.ID)
	}
	return svc.repo.MarkApplied(ctx, rec.ID, rating, nowFunc())
}

// DeleteByInstance removes all reaction records of a deleted instance.
func (svc *Service) DeleteByInstance(ctx context.Context, instanceID int) error {
	return svc.repo.DeleteByInstance(ctx, instanceID)
}

func (svc *Service) link(rec Record) string {
	return fmt.Sprintf(
		"%s/reactions/%s?token=%s",
		svc.siteURL, EncodeRecordID(rec.ID), url.QueryEscape(makeToken(svc.secret, rec)),
	)
}
