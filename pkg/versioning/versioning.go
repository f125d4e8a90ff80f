// Package versioning implements an event schema upcasting registry: a
// chain of per-version transforms that bring an older event payload up
// to the current schema version.
package versioning

import (
	"fmt"
	"sort"
	"sync"

	"github.com/coreflow/eventcore/pkg/coreerr"
	"github.com/coreflow/eventcore/pkg/message"
)

// Upcaster transforms evt from SourceVersion to SourceVersion+1. It
// must return a new Event value (or the same one mutated in place,
// but callers should treat the return value as authoritative) with
// SchemaVersion incremented.
type Upcaster func(evt message.Event) (message.Event, error)

type key struct {
	eventType     string
	sourceVersion int
}

// Registry holds upcasters keyed by (event type, source version) and
// walks the chain forward to reach a target version.
type Registry struct {
	mu        sync.RWMutex
	upcasters map[key]Upcaster
}

// NewRegistry constructs an empty upcaster registry.
func NewRegistry() *Registry {
	return &Registry{upcasters: make(map[key]Upcaster)}
}

// Register adds an upcaster taking eventType from sourceVersion to
// sourceVersion+1. Registering a second upcaster for the same
// (eventType, sourceVersion) pair returns coreerr.ErrDuplicateUpcaster.
func (r *Registry) Register(eventType string, sourceVersion int, up Upcaster) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{eventType, sourceVersion}
	if _, exists := r.upcasters[k]; exists {
		return fmt.Errorf("%w: %s v%d", coreerr.ErrDuplicateUpcaster, eventType, sourceVersion)
	}
	r.upcasters[k] = up
	return nil
}

// Upcast walks the chain of registered upcasters for evt.Type,
// starting at evt.SchemaVersion, until it reaches targetVersion.
// Returns coreerr.ErrUpcastDowncast if evt.SchemaVersion already
// exceeds targetVersion, and coreerr.ErrUpcastMissing if the chain is
// broken before reaching targetVersion.
func (r *Registry) Upcast(evt message.Event, targetVersion int) (message.Event, error) {
	if evt.SchemaVersion > targetVersion {
		return evt, fmt.Errorf("%w: %s is at v%d, target v%d", coreerr.ErrUpcastDowncast, evt.Type, evt.SchemaVersion, targetVersion)
	}

	current := evt
	for current.SchemaVersion < targetVersion {
		r.mu.RLock()
		up, ok := r.upcasters[key{current.Type, current.SchemaVersion}]
		r.mu.RUnlock()
		if !ok {
			return current, fmt.Errorf("%w: %s v%d -> v%d", coreerr.ErrUpcastMissing, current.Type, current.SchemaVersion, targetVersion)
		}

		next, err := up(current)
		if err != nil {
			return current, &coreerr.UpcasterError{
				EventType:     current.Type,
				SourceVersion: current.SchemaVersion,
				TargetVersion: current.SchemaVersion + 1,
				Reason:        err,
			}
		}
		if next.SchemaVersion != current.SchemaVersion+1 {
			next.SchemaVersion = current.SchemaVersion + 1
		}
		current = next
	}
	return current, nil
}

// ChainInfo describes the registered upcast path for one event type:
// the sorted list of source versions for which an upcaster exists.
type ChainInfo struct {
	EventType      string
	SourceVersions []int
}

// ChainInfo reports the registered chain for eventType, for
// diagnostics and for verifying a chain is unbroken up to a given
// version before relying on it in production.
func (r *Registry) ChainInfo(eventType string) ChainInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var versions []int
	for k := range r.upcasters {
		if k.eventType == eventType {
			versions = append(versions, k.sourceVersion)
		}
	}
	sort.Ints(versions)
	return ChainInfo{EventType: eventType, SourceVersions: versions}
}
