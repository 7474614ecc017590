package scheduler

import (
	"sync"
)

// claimOutcome describes how a device was obtained from the reservation table.
type claimOutcome string

const (
	// claimReserved means the device had no holder.
	claimReserved claimOutcome = "reserved"
	// claimRenewed means the device was already held by the same importance.
	claimRenewed claimOutcome = "renewed"
	// claimPreempted means a less important holder was displaced.
	claimPreempted claimOutcome = "preempted"
	// claimShared means every candidate was held by a more important class and
	// the device was handed out without a reservation.
	claimShared claimOutcome = "shared"
)

// reservationTable maps a device unique name to the importance class
// currently holding it. All access goes through its methods, which hold mu
// for the whole read-check-write sequence.
type reservationTable struct {
	mu      sync.Mutex
	holders map[string]Importance // uniqueName -> importance
	// observe, if set, receives the table size after every mutation. It runs
	// with mu held.
	observe func(n int)
}

func newReservationTable() *reservationTable {
	return &reservationTable{holders: make(map[string]Importance)}
}

// claim walks candidates in order and reserves the first one that is free or
// held by an equal or less important class. It returns false if every
// candidate is held by a strictly more important class; the table is not
// modified in that case.
func (t *reservationTable) claim(candidates []DeviceDescriptor, importance Importance) (DeviceDescriptor, claimOutcome, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, d := range candidates {
		holder, held := t.holders[d.UniqueName]
		if held && holder < importance {
			continue
		}
		outcome := claimReserved
		if held && holder == importance {
			outcome = claimRenewed
		} else if held {
			outcome = claimPreempted
		}
		t.holders[d.UniqueName] = importance
		t.observeLocked()
		return d, outcome, true
	}
	return DeviceDescriptor{}, "", false
}

// release removes the reservation on uniqueName iff it is held by importance.
// It reports whether an entry was removed.
func (t *reservationTable) release(importance Importance, uniqueName string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if holder, ok := t.holders[uniqueName]; ok && holder == importance {
		delete(t.holders, uniqueName)
		t.observeLocked()
		return true
	}
	return false
}

func (t *reservationTable) observeLocked() {
	if t.observe != nil {
		t.observe(len(t.holders))
	}
}

// snapshot returns a copy of the table.
func (t *reservationTable) snapshot() map[string]Importance {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]Importance, len(t.holders))
	for k, v := range t.holders {
		out[k] = v
	}
	return out
}

func (t *reservationTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.holders)
}
