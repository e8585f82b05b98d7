package registry

import (
	"fmt"
	"sync"

	"github.com/HMasataka/hubconn/pkg/errors"
)

// ErrInvalidDeclaration is returned for declarations without a hub name.
var ErrInvalidDeclaration = errors.New(errors.ErrorTypeConfiguration, "INVALID_DECLARATION", "invalid hub declaration")

// Subscription binds an inbound hub event to a handler name on the subscriber.
type Subscription struct {
	Event   string
	Handler string
}

// Declaration describes one hub: its name, the groups it belongs to and the
// events its subscribers listen for.
type Declaration struct {
	HubName       string
	Groups        Groups
	Subscriptions []Subscription
}

// Declarer is implemented by subscriber types to supply their hub declaration.
type Declarer interface {
	HubDeclaration() Declaration
}

func (d Declaration) clone() Declaration {
	subs := make([]Subscription, len(d.Subscriptions))
	copy(subs, d.Subscriptions)
	return Declaration{
		HubName:       d.HubName,
		Groups:        d.Groups,
		Subscriptions: subs,
	}
}

// merge unions subscriptions and groups. Duplicate subscriptions collapse and
// first-seen order is kept.
func (d Declaration) merge(other Declaration) Declaration {
	out := d.clone()
	seen := make(map[Subscription]struct{}, len(out.Subscriptions)+len(other.Subscriptions))
	for _, s := range out.Subscriptions {
		seen[s] = struct{}{}
	}
	for _, s := range other.Subscriptions {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out.Subscriptions = append(out.Subscriptions, s)
	}
	out.Groups = out.Groups.Union(other.Groups)
	return out
}

// Registry holds hub declarations keyed by hub name.
type Registry struct {
	mu    sync.RWMutex
	hubs  map[string]Declaration
	order []string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		hubs: make(map[string]Declaration),
	}
}

// Declare adds d, merging it into any existing declaration of the same hub.
func (r *Registry) Declare(d Declaration) error {
	if d.HubName == "" {
		return ErrInvalidDeclaration.WithDetails("empty hub name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.hubs[d.HubName]
	if !ok {
		r.hubs[d.HubName] = Declaration{HubName: d.HubName}.merge(d)
		r.order = append(r.order, d.HubName)
		return nil
	}
	r.hubs[d.HubName] = existing.merge(d)
	return nil
}

// Collect declares the declaration of every prototype.
func (r *Registry) Collect(prototypes ...Declarer) error {
	for _, p := range prototypes {
		if p == nil {
			continue
		}
		if err := r.Declare(p.HubDeclaration()); err != nil {
			return fmt.Errorf("collect %T: %w", p, err)
		}
	}
	return nil
}

// Lookup returns a copy of the named declaration.
func (r *Registry) Lookup(name string) (Declaration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.hubs[name]
	if !ok {
		return Declaration{}, false
	}
	return d.clone(), true
}

// Declarations returns copies of all declarations in declaration order.
func (r *Registry) Declarations() []Declaration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Declaration, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.hubs[name].clone())
	}
	return out
}

// Len returns the number of declared hubs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
