// Copyright 2025 Certen Protocol
package main

import "github.com/certen/authority-core/pkg/objtype"

// staticPeerState answers the consensus adapter's ConnectionMonitor
// collaborator with a fixed value. Gossip-layer connectivity tracking is
// out of scope (spec.md §1); wiring a real implementation only requires
// satisfying this one-method interface. The adapter's ReputationScores
// collaborator is answered by consensusadapter.ReputationTracker instead,
// since that one has a usable bounded-cache default worth wiring.
type staticPeerState struct{}

func (staticPeerState) IsConnected(objtype.Address) bool { return true }
