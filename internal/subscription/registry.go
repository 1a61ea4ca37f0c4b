// Package subscription reconciles the set of channels consumers want
// against the set actually subscribed on the wire.
//
// Screens replace the desired set wholesale (SetDesired); Reconcile then
// produces subscribe/unsubscribe diffs and eagerly marks the sent channels
// active, since the transport is fire-and-forget for subscribe.
package subscription

import (
	"log/slog"
	"sync"

	"marketfeed/internal/auth"
	"marketfeed/internal/channel"
)

// Diff is the outcome of one reconciliation pass.
type Diff struct {
	ToSubscribe    []channel.Channel // desired − active, minus gated private channels
	ToUnsubscribe  []channel.Channel // active − desired, plus deauthenticated privates
	SkippedPrivate []channel.Channel // private channels excluded for lack of a token
}

// Empty reports whether the diff requires no wire traffic.
func (d Diff) Empty() bool {
	return len(d.ToSubscribe) == 0 && len(d.ToUnsubscribe) == 0
}

// Registry tracks desired vs active channels, keyed by canonical string
// form. All methods are safe for concurrent use; mutations from consumers
// happen-before the next Reconcile.
type Registry struct {
	tokens *auth.TokenStore
	logger *slog.Logger

	mu      sync.Mutex
	desired map[string]channel.Channel
	active  map[string]channel.Channel
}

// NewRegistry creates an empty registry gated on the given token store.
func NewRegistry(tokens *auth.TokenStore, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if tokens == nil {
		tokens = &auth.TokenStore{}
	}

	return &Registry{
		tokens:  tokens,
		logger:  logger,
		desired: make(map[string]channel.Channel),
		active:  make(map[string]channel.Channel),
	}
}

// SetDesired replaces the consumer's desired channel set.
func (r *Registry) SetDesired(channels []channel.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.desired = make(map[string]channel.Channel, len(channels))
	for _, ch := range channels {
		r.desired[ch.String()] = ch
	}
}

// Desired returns a copy of the desired channel set.
func (r *Registry) Desired() []channel.Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return collect(r.desired)
}

// Active returns a copy of the channels currently marked subscribed.
func (r *Registry) Active() []channel.Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return collect(r.active)
}

// Reconcile computes the subscribe/unsubscribe diff and applies it to the
// active set eagerly; a caller whose send fails must Rollback the failed
// portion so the channels stay pending. Private channels are excluded from
// the subscribe side when no token is present; they remain eligible for
// unsubscribe when previously active and now undesired or deauthenticated.
// Calling Reconcile twice with no intervening SetDesired yields an empty
// diff the second time.
func (r *Registry) Reconcile() Diff {
	r.mu.Lock()
	defer r.mu.Unlock()

	authed := r.tokens.Present()
	var diff Diff

	for key, ch := range r.desired {
		if _, ok := r.active[key]; ok {
			continue
		}
		if ch.IsPrivate() && !authed {
			diff.SkippedPrivate = append(diff.SkippedPrivate, ch)
			continue
		}
		diff.ToSubscribe = append(diff.ToSubscribe, ch)
	}

	for key, ch := range r.active {
		_, wanted := r.desired[key]
		if wanted && !(ch.IsPrivate() && !authed) {
			continue
		}
		diff.ToUnsubscribe = append(diff.ToUnsubscribe, ch)
	}

	for _, ch := range diff.ToSubscribe {
		r.active[ch.String()] = ch
	}
	for _, ch := range diff.ToUnsubscribe {
		delete(r.active, ch.String())
	}

	if len(diff.SkippedPrivate) > 0 {
		r.logger.Warn("private channels excluded from subscribe, no access token",
			"count", len(diff.SkippedPrivate),
		)
	}

	return diff
}

// UnsubscribeAll clears the active set and returns the channels that were
// active, for the caller to cover with one UNSUBSCRIBE. The desired set is
// untouched, so a later Reconcile resubscribes everything still wanted.
func (r *Registry) UnsubscribeAll() []channel.Channel {
	r.mu.Lock()
	defer r.mu.Unlock()

	was := collect(r.active)
	r.active = make(map[string]channel.Channel)
	return was
}

// Rollback undoes the eager active-set application for the parts of a
// diff whose control frames never reached the wire: ToSubscribe entries
// are deactivated, ToUnsubscribe entries are reinstated. The next
// Reconcile re-emits them.
func (r *Registry) Rollback(diff Diff) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ch := range diff.ToSubscribe {
		delete(r.active, ch.String())
	}
	for _, ch := range diff.ToUnsubscribe {
		r.active[ch.String()] = ch
	}
}

// ClearActive forgets the active set without emitting wire traffic. Used
// when the socket closes: the server has forgotten the subscriptions too.
func (r *Registry) ClearActive() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = make(map[string]channel.Channel)
}

// Tokens returns the registry's token store.
func (r *Registry) Tokens() *auth.TokenStore {
	return r.tokens
}

func collect(m map[string]channel.Channel) []channel.Channel {
	out := make([]channel.Channel, 0, len(m))
	for _, ch := range m {
		out = append(out, ch)
	}
	return out
}
