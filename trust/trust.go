// Package trust applies fraud flags and the listing removal cascade they trigger.
//
// The flag write and the listing deletion are separate single-record-set
// writes. If the process stops between them the user stays flagged with
// listings still present; Reconcile finishes the job and is safe to repeat.
package trust

import (
	"context"
	"fmt"

	"signature-elite-server/auth"
	"signature-elite-server/models"

	"github.com/kataras/golog"
)

// Users is the subset of the user directory the enforcer writes through.
type Users interface {
	SetFraud(ctx context.Context, id uint, isFraud bool) (models.User, error)
	FraudAgents(ctx context.Context) ([]models.User, error)
}

// Listings removes and counts an agent's listings without ownership checks.
type Listings interface {
	DeleteAllByAgent(ctx context.Context, agentEmail string) (int64, error)
	CountByAgent(ctx context.Context, agentEmail string) (int64, error)
}

type Enforcer struct {
	users    Users
	listings Listings
	log      *golog.Logger
}

func NewEnforcer(users Users, listings Listings, logger *golog.Logger) *Enforcer {
	if logger == nil {
		logger = golog.Default
	}
	return &Enforcer{users: users, listings: listings, log: logger}
}

// Result reports what a fraud flag change did.
type Result struct {
	User            models.User `json:"user"`
	ListingsRemoved int64       `json:"listingsRemoved"`
}

// SetFraudFlag sets the flag on userID. Flagging removes every listing the
// user owns, whatever its state and whatever offers point at it. Clearing the
// flag restores nothing; only future listings are permitted again.
func (e *Enforcer) SetFraudFlag(ctx context.Context, claim auth.Claim, userID uint, isFraud bool) (Result, error) {
	if err := auth.Authorize(claim, auth.ManageUsers); err != nil {
		return Result{}, err
	}
	user, err := e.users.SetFraud(ctx, userID, isFraud)
	if err != nil {
		return Result{}, err
	}
	result := Result{User: user}
	if !isFraud {
		return result, nil
	}

	removed, err := e.listings.DeleteAllByAgent(ctx, user.Email)
	if err != nil {
		e.log.Warnf("trust: %s flagged as fraud but listing removal failed, reconcile pending: %v", user.Email, err)
		return result, fmt.Errorf("remove listings of %s: %w", user.Email, err)
	}
	result.ListingsRemoved = removed
	e.log.Infof("trust: %s flagged as fraud, %d listings removed", user.Email, removed)
	return result, nil
}

// Reconcile re-runs the cascade for every flagged user that still owns
// listings and returns the number of listings removed.
func (e *Enforcer) Reconcile(ctx context.Context, claim auth.Claim) (int64, error) {
	if err := auth.Authorize(claim, auth.ReconcileFraud); err != nil {
		return 0, err
	}
	flagged, err := e.users.FraudAgents(ctx)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, user := range flagged {
		left, err := e.listings.CountByAgent(ctx, user.Email)
		if err != nil {
			return total, err
		}
		if left == 0 {
			continue
		}
		e.log.Warnf("trust: %s is flagged but still owns %d listings, repairing", user.Email, left)
		removed, err := e.listings.DeleteAllByAgent(ctx, user.Email)
		if err != nil {
			return total, fmt.Errorf("reconcile %s: %w", user.Email, err)
		}
		total += removed
	}
	return total, nil
}
