package aggregator

import (
	"fmt"

	"github.com/cuemby/meridian/pkg/objecthash"
	"github.com/cuemby/meridian/pkg/patch"
	"github.com/cuemby/meridian/pkg/proofmap"
)

// topLevelAddress is the reserved address name for the default namespace's
// aggregator, spec.md §6 "Aggregator index".
const topLevelAddress = "__STATE_AGGREGATOR__"

// namespaceAddress returns the reserved address for a migration
// namespace's own aggregator, or topLevelAddress for the default ("").
func namespaceAddress(namespace string) string {
	if namespace == "" {
		return topLevelAddress
	}
	return topLevelAddress + ":" + namespace
}

// HashProvider supplies the current object hash of addr's index. ok is
// false when the index no longer exists (e.g. cleared by a migration
// rollback), signaling Sync to remove its entry instead of writing one.
type HashProvider func(addr patch.ResolvedAddress) (hash objecthash.Hash, ok bool)

// Sync implements spec.md §4.2 "into_patch" steps 2-3: for every address
// fork.ChangedAggregatedAddrs reports, recompute its object hash via
// hashOf and write it into its namespace's aggregator map, or remove it if
// hashOf reports the index gone. Callers run Sync between Fork.Flush and
// Fork.IntoPatch; IntoPatch's own flush then captures Sync's writes to the
// aggregator maps themselves, matching "(4) flush again to capture
// aggregator changes".
func Sync(fork *patch.Fork, hashOf HashProvider) error {
	changed := fork.ChangedAggregatedAddrs()
	if len(changed) == 0 {
		return nil
	}

	byNamespace := make(map[string][]patch.ResolvedAddress)
	for addr, ns := range changed {
		byNamespace[ns] = append(byNamespace[ns], addr)
	}

	for ns, addrs := range byNamespace {
		if err := syncNamespace(fork, ns, addrs, hashOf); err != nil {
			return err
		}
	}

	fork.ClearChangedAggregatedAddrs()
	return nil
}

func syncNamespace(fork *patch.Fork, namespace string, addrs []patch.ResolvedAddress, hashOf HashProvider) error {
	view := fork.View(namespaceAddress(namespace))
	defer view.Close()

	m := proofmap.New(view)
	for _, addr := range addrs {
		if hash, ok := hashOf(addr); ok {
			if err := m.Put([]byte(addr.Name), hash[:]); err != nil {
				return fmt.Errorf("aggregator: recording %q: %w", addr.Name, err)
			}
		} else if err := m.Remove([]byte(addr.Name)); err != nil {
			return fmt.Errorf("aggregator: removing %q: %w", addr.Name, err)
		}
	}
	return nil
}

// StateHash returns the top-level aggregator's object hash: the
// state_hash recorded in each committed block.
func StateHash(fork *patch.Fork) objecthash.Hash {
	view := fork.ReadonlyView(topLevelAddress)
	defer view.Close()
	return proofmap.New(view).ObjectHash()
}

// NamespaceHash returns a migration namespace's own aggregator hash.
func NamespaceHash(fork *patch.Fork, namespace string) objecthash.Hash {
	view := fork.ReadonlyView(namespaceAddress(namespace))
	defer view.Close()
	return proofmap.New(view).ObjectHash()
}

// Get looks up one index's last-synced object hash in the default
// namespace's aggregator, satisfying testable property 7 ("after
// into_patch(), aggregator.get(I.name) == I.object_hash").
func Get(fork *patch.Fork, indexName string) (objecthash.Hash, bool, error) {
	view := fork.ReadonlyView(topLevelAddress)
	defer view.Close()

	val, ok, err := proofmap.New(view).Get([]byte(indexName))
	if err != nil || !ok {
		return objecthash.Hash{}, false, err
	}
	if len(val) != objecthash.Size {
		return objecthash.Hash{}, false, fmt.Errorf("aggregator: stored hash for %q has wrong length %d", indexName, len(val))
	}
	var h objecthash.Hash
	copy(h[:], val)
	return h, true, nil
}
