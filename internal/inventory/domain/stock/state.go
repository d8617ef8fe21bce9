// Package stock holds the event-sourced stock entity for one product.
//
// State is a pure value: folds return new values and never mutate slices in
// place, so replaying a stream in one pass or in batches produces identical
// results.
package stock

// Resolution records a carrier reservation outcome tagged by its command id.
type Resolution struct {
	CommandID string
	Amount    int64
}

// State is the current stock entity for one product, derived entirely from
// the product's event stream.
type State struct {
	// ID is the product identifier.
	ID string
	// Amount is the available quantity after all admitted reservations.
	Amount int64
	// Revision counts processed reservation attempts and acts as the
	// optimistic concurrency fence for the prepare protocol.
	Revision uint64
	// ToCommit, ToReject, and ToRetry hold pending command ids awaiting a
	// terminal outcome. A command id appears in at most one of the three.
	ToCommit []string
	ToReject []string
	ToRetry  []string
	// Accepted and Rejected hold resolved carrier reservation outcomes in
	// arrival order, used for idempotent redelivery checks.
	Accepted []Resolution
	Rejected []Resolution
}

// InToCommit reports whether the command id awaits a commit.
func (s State) InToCommit(commandID string) bool {
	return containsID(s.ToCommit, commandID)
}

// InToReject reports whether the command id awaits a reject.
func (s State) InToReject(commandID string) bool {
	return containsID(s.ToReject, commandID)
}

// InToRetry reports whether the command id must be resubmitted.
func (s State) InToRetry(commandID string) bool {
	return containsID(s.ToRetry, commandID)
}

// AcceptedFor returns the accepted carrier resolution for a command id.
func (s State) AcceptedFor(commandID string) (Resolution, bool) {
	return resolutionFor(s.Accepted, commandID)
}

// RejectedFor returns the rejected carrier resolution for a command id.
func (s State) RejectedFor(commandID string) (Resolution, bool) {
	return resolutionFor(s.Rejected, commandID)
}

func resolutionFor(resolutions []Resolution, commandID string) (Resolution, bool) {
	for _, resolution := range resolutions {
		if resolution.CommandID == commandID {
			return resolution, true
		}
	}
	return Resolution{}, false
}

func containsID(ids []string, commandID string) bool {
	for _, id := range ids {
		if id == commandID {
			return true
		}
	}
	return false
}

// appendID returns a new slice with the command id appended.
func appendID(ids []string, commandID string) []string {
	out := make([]string, 0, len(ids)+1)
	out = append(out, ids...)
	return append(out, commandID)
}

// removeID returns a new slice with every occurrence of the command id removed.
func removeID(ids []string, commandID string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != commandID {
			out = append(out, id)
		}
	}
	return out
}

func appendResolution(resolutions []Resolution, resolution Resolution) []Resolution {
	out := make([]Resolution, 0, len(resolutions)+1)
	out = append(out, resolutions...)
	return append(out, resolution)
}
