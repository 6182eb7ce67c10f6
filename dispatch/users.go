// ABOUTME: Handlers for user, presence, preference, reaction, and role events
// ABOUTME: Bare status events coalesce into one batched presence fetch

package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/2389/chatsync/model"
	"github.com/2389/chatsync/store"
)

// handleUserUpdated applies a pushed profile change.
func (d *Dispatcher) handleUserUpdated(ctx context.Context, ev *model.Event) error {
	var user model.User
	if err := ev.UnmarshalData("user", &user); err != nil {
		return err
	}
	op, err := d.store.PrepareUpsertUser(ctx, &user)
	if err != nil {
		return err
	}
	return d.commit(ctx, op)
}

// handleStatusChanged applies presence. Events carrying the status apply
// directly; bare user-id notifications enqueue into the coalescing
// queue so a burst becomes one remote fetch.
func (d *Dispatcher) handleStatusChanged(ctx context.Context, ev *model.Event) error {
	userID := eventUserID(ev)
	if userID == "" {
		return fmt.Errorf("status_change event missing user id")
	}

	if status := ev.DataString("status"); status != "" {
		return d.commit(ctx, d.store.PrepareSetUserStatus(userID, status))
	}
	d.statuses.Enqueue(userID)
	return nil
}

// handlePreferenceChanged applies a single changed preference.
func (d *Dispatcher) handlePreferenceChanged(ctx context.Context, ev *model.Event) error {
	var pref model.Preference
	if err := ev.UnmarshalData("preference", &pref); err != nil {
		return err
	}
	op, err := d.store.PrepareUpsertPreference(ctx, &pref)
	if err != nil {
		return err
	}
	return d.commit(ctx, op)
}

// handlePreferencesChanged applies a batch of changed preferences.
func (d *Dispatcher) handlePreferencesChanged(ctx context.Context, ev *model.Event) error {
	prefs, err := eventPreferences(ev)
	if err != nil {
		return err
	}
	ops, err := d.engine.PlanPreferences(ctx, prefs)
	if err != nil {
		return err
	}
	return d.commit(ctx, ops...)
}

// handlePreferencesDeleted removes deleted preferences.
func (d *Dispatcher) handlePreferencesDeleted(ctx context.Context, ev *model.Event) error {
	prefs, err := eventPreferences(ev)
	if err != nil {
		return err
	}
	ops := make([]*store.Op, 0, len(prefs))
	for i := range prefs {
		ops = append(ops, d.store.PrepareDeletePreference(&prefs[i]))
	}
	return d.commit(ctx, ops...)
}

func eventPreferences(ev *model.Event) ([]model.Preference, error) {
	var prefs []model.Preference
	if err := ev.UnmarshalData("preferences", &prefs); err != nil {
		return nil, err
	}
	return prefs, nil
}

// handleReactionAdded stores a reaction; the composite-key dedup makes a
// replayed event a no-op.
func (d *Dispatcher) handleReactionAdded(ctx context.Context, ev *model.Event) error {
	var reaction model.Reaction
	if err := ev.UnmarshalData("reaction", &reaction); err != nil {
		return err
	}
	op, err := d.store.PrepareUpsertReaction(ctx, &reaction)
	if err != nil {
		return err
	}
	return d.commit(ctx, op)
}

// handleReactionRemoved removes a reaction by its composite key.
func (d *Dispatcher) handleReactionRemoved(ctx context.Context, ev *model.Event) error {
	var reaction model.Reaction
	if err := ev.UnmarshalData("reaction", &reaction); err != nil {
		return err
	}
	return d.commit(ctx, d.store.PrepareDeleteReaction(&reaction))
}

// handleRoleUpdated applies an edited role definition.
func (d *Dispatcher) handleRoleUpdated(ctx context.Context, ev *model.Event) error {
	var role model.Role
	if err := ev.UnmarshalData("role", &role); err != nil {
		return err
	}
	op, err := d.store.PrepareUpsertRole(ctx, &role)
	if err != nil {
		return err
	}
	return d.commit(ctx, op)
}

// handleUserRoleUpdated updates the current user's role string and
// fetches any role definitions not yet cached.
func (d *Dispatcher) handleUserRoleUpdated(ctx context.Context, ev *model.Event) error {
	userID := eventUserID(ev)
	roles := ev.DataString("roles")
	if userID == "" {
		return fmt.Errorf("user_role_updated event missing user id")
	}

	var ops []*store.Op
	user, err := d.store.GetUser(ctx, userID)
	if err == nil {
		updated := *user
		updated.Roles = roles
		userOp, err := d.store.PrepareUpsertUser(ctx, &updated)
		if err != nil {
			return err
		}
		ops = append(ops, userOp)
	} else if err != store.ErrNotFound {
		return err
	}

	roleOps, err := d.engine.FetchMissingRoles(ctx, splitRoles(roles))
	if err != nil {
		return err
	}
	ops = append(ops, roleOps...)
	return d.commit(ctx, ops...)
}

// handleConfigChanged refreshes the cached server configuration.
func (d *Dispatcher) handleConfigChanged(ctx context.Context, ev *model.Event) error {
	cfg, err := d.client.GetClientConfig(ctx)
	if err != nil {
		return err
	}
	op, err := d.store.PrepareSetConfig(ctx, cfg)
	if err != nil {
		return err
	}
	return d.commit(ctx, op)
}

// handleLicenseChanged refreshes the cached license flags.
func (d *Dispatcher) handleLicenseChanged(ctx context.Context, ev *model.Event) error {
	license, err := d.client.GetClientLicense(ctx)
	if err != nil {
		return err
	}
	op, err := d.store.PrepareSetLicense(ctx, license)
	if err != nil {
		return err
	}
	return d.commit(ctx, op)
}

// splitRoles breaks a space-separated roles string into names.
func splitRoles(roles string) []string {
	if roles == "" {
		return nil
	}
	return strings.Fields(roles)
}
