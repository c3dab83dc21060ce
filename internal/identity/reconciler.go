package identity

import (
	"context"
	"fmt"

	"github.com/lalith-99/aipdfly/internal/notify"
	"github.com/lalith-99/aipdfly/internal/repository"
	"go.uber.org/zap"
)

// Outcome is what applying an event did to the store.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeNoop    Outcome = "noop"
	OutcomeIgnored Outcome = "ignored"
)

// Reconciler applies identity events to the users table. Every arm is
// idempotent: replaying an event leaves the same state as applying it once.
type Reconciler struct {
	users     repository.UserRepository
	publisher notify.Publisher
	logger    *zap.Logger
}

func NewReconciler(users repository.UserRepository, publisher notify.Publisher, logger *zap.Logger) *Reconciler {
	return &Reconciler{users: users, publisher: publisher, logger: logger}
}

// Apply writes ev to the users table and notifies the user's open streams.
func (r *Reconciler) Apply(ctx context.Context, ev Event) (Outcome, error) {
	switch e := ev.(type) {
	case UserCreated:
		u, err := r.users.Upsert(ctx, e.Profile)
		if err != nil {
			return "", fmt.Errorf("apply %s: %w", e.Type(), err)
		}
		r.publish(u.ID, map[string]any{"user": u})
		return OutcomeApplied, nil

	case UserUpdated:
		ok, err := r.users.Update(ctx, e.Profile, e.Role)
		if err != nil {
			return "", fmt.Errorf("apply %s: %w", e.Type(), err)
		}
		if !ok {
			// Either the create has not landed yet or the user was deleted;
			// inserting here could resurrect a deleted account.
			r.logger.Info("identity update for unknown user", zap.String("user_id", e.Profile.ID))
			return OutcomeNoop, nil
		}
		r.publish(e.Profile.ID, map[string]any{"role": e.Role})
		return OutcomeApplied, nil

	case UserDeleted:
		if err := r.users.Delete(ctx, e.UserID); err != nil {
			return "", fmt.Errorf("apply %s: %w", e.Type(), err)
		}
		r.publish(e.UserID, map[string]any{"deleted": true})
		return OutcomeApplied, nil

	case Unhandled:
		r.logger.Debug("identity event not handled", zap.String("event_type", e.Kind))
		return OutcomeIgnored, nil

	default:
		return OutcomeIgnored, nil
	}
}

func (r *Reconciler) publish(userID string, data any) {
	if r.publisher == nil {
		return
	}
	r.publisher.Publish(userID, notify.Event{Type: notify.EventUserSynced, Data: data})
}
