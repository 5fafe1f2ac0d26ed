// Package workflow defines the status vocabulary for fee structures and
// subscription requests and the static transition table that decides which
// status changes are legal. It is pure: no I/O, no clock, no configuration.
package workflow

// EntityType names a workflow-governed entity.
type EntityType string

const (
	EntityFee          EntityType = "fee"
	EntitySubscription EntityType = "subscription"
)

// Status is one state in an entity's lifecycle.
type Status string

// Fee structure statuses.
const (
	FeeDraft           Status = "draft"
	FeePendingApproval Status = "pending_approval"
	FeeActive          Status = "active"
	FeePaused          Status = "paused"
	FeeRejected        Status = "rejected"
	FeeExpired         Status = "expired"
	FeeArchived        Status = "archived"
	FeeCancelled       Status = "cancelled"
)

// Subscription request statuses.
const (
	SubPendingPayment Status = "pending_payment"
	SubUnderReview    Status = "under_review"
	SubApproved       Status = "approved"
	SubRejected       Status = "rejected"
)

// transitions is the full adjacency table. A status mapped to an empty set is
// terminal. Pairs absent from the table allow nothing (fail closed).
var transitions = map[EntityType]map[Status][]Status{
	EntityFee: {
		FeeDraft:           {FeePendingApproval, FeeCancelled},
		FeePendingApproval: {FeeActive, FeeRejected, FeeDraft},
		FeeActive:          {FeePaused, FeeArchived, FeeExpired},
		FeePaused:          {FeeActive, FeeArchived},
		FeeRejected:        {FeeDraft},
		FeeExpired:         {FeeArchived},
		FeeArchived:        {},
		FeeCancelled:       {},
	},
	EntitySubscription: {
		SubPendingPayment: {SubUnderReview},
		SubUnderReview:    {SubApproved, SubRejected},
		SubRejected:       {SubPendingPayment},
		SubApproved:       {},
	},
}

// initialStatus is the status every entity is created in.
var initialStatus = map[EntityType]Status{
	EntityFee:          FeeDraft,
	EntitySubscription: SubPendingPayment,
}

// Allowed reports whether from → to is a legal transition for the entity
// type. Self-transitions and unknown pairs are never legal.
func Allowed(entityType EntityType, from, to Status) bool {
	if from == to {
		return false
	}
	for _, target := range transitions[entityType][from] {
		if target == to {
			return true
		}
	}
	return false
}

// AllowedTargets returns a copy of the legal target set for (entityType, from).
func AllowedTargets(entityType EntityType, from Status) []Status {
	targets := transitions[entityType][from]
	out := make([]Status, len(targets))
	copy(out, targets)
	return out
}

// Terminal reports whether a status admits no further transitions. Unknown
// statuses are terminal by the fail-closed rule.
func Terminal(entityType EntityType, status Status) bool {
	return len(transitions[entityType][status]) == 0
}

// Known reports whether the status appears in the entity type's lifecycle.
func Known(entityType EntityType, status Status) bool {
	if _, ok := transitions[entityType][status]; ok {
		return true
	}
	return false
}

// Initial returns the creation status for an entity type.
func Initial(entityType EntityType) Status {
	return initialStatus[entityType]
}

// KnownEntityType reports whether the entity type has a transition table.
func KnownEntityType(entityType EntityType) bool {
	_, ok := transitions[entityType]
	return ok
}
