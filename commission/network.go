/*
network.go - Sponsor graph traversal

PURPOSE:
  Walks the sponsor chain upward from a payer. The graph is a forest by
  invariant (every account has at most one sponsor, no cycles), but corrupt
  data must not hang the engine: the walk carries a visited set and a hard
  depth cap regardless of actual chain length.
*/
package commission

import (
	"context"
	"fmt"
)

// ChainLink is one ancestor in a sponsor chain. Level is the distance in
// sponsor-edge hops from the payer (the direct sponsor is level 1).
type ChainLink struct {
	Level   int
	Account Account
}

// SponsorChain returns the ancestors of start, nearest first, up to maxDepth
// links. The chain ends early at a root (no sponsor), a dangling sponsor
// reference, or a cycle; a cycle truncates the walk rather than erroring,
// because the auditor surfaces it as a data-integrity finding separately.
func SponsorChain(ctx context.Context, store AccountStore, start AccountID, maxDepth int) ([]ChainLink, error) {
	payer, err := store.Account(ctx, start)
	if err != nil {
		return nil, err
	}
	if payer == nil {
		return nil, fmt.Errorf("sponsor chain for %s: %w", start, ErrAccountNotFound)
	}

	visited := map[AccountID]bool{start: true}
	chain := make([]ChainLink, 0, maxDepth)

	current := payer
	for level := 1; level <= maxDepth; level++ {
		if current.SponsorID == nil {
			break
		}
		next := *current.SponsorID
		if visited[next] {
			break
		}
		visited[next] = true

		sponsor, err := store.Account(ctx, next)
		if err != nil {
			return nil, err
		}
		if sponsor == nil {
			// Dangling reference; the chain simply ends here.
			break
		}

		chain = append(chain, ChainLink{Level: level, Account: *sponsor})
		current = sponsor
	}
	return chain, nil
}

// ValidateSponsorBind checks that making sponsor the upline of account would
// not create a cycle. Called before registration binds the edge.
func ValidateSponsorBind(ctx context.Context, store AccountStore, account AccountID, sponsor AccountID) error {
	if account == sponsor {
		return ErrSponsorCycle
	}
	// Walk up from the proposed sponsor; reaching account means a cycle.
	seen := map[AccountID]bool{}
	current := sponsor
	for !seen[current] {
		seen[current] = true
		a, err := store.Account(ctx, current)
		if err != nil {
			return err
		}
		if a == nil || a.SponsorID == nil {
			return nil
		}
		if *a.SponsorID == account {
			return ErrSponsorCycle
		}
		current = *a.SponsorID
	}
	return nil
}
