// Package altar models the deposit altar that opens once both time crystals are returned.
// This package is PURE and must NOT import any infrastructure packages.
package altar

// Tag identifies what kind of object is offered to the altar.
type Tag string

const (
	TagSCrystal Tag = "SCrystal" // crystal from the slow room
	TagFCrystal Tag = "FCrystal" // crystal from the fast room
)

// Result is the outcome of one deposit attempt.
type Result struct {
	Accepted      bool `json:"accepted"`       // the object was consumed by the altar
	RewardSpawned bool `json:"reward_spawned"` // this deposit completed the altar
}

// Altar accepts exactly one crystal of each kind and spawns its reward once.
type Altar struct {
	HasSCrystal   bool `json:"has_s_crystal"`
	HasFCrystal   bool `json:"has_f_crystal"`
	RewardSpawned bool `json:"reward_spawned"`
}

// New creates an empty altar.
func New() *Altar {
	return &Altar{}
}

// TryDeposit offers an object. Wrong tags, duplicates and anything offered after the reward
// are rejected and left untouched.
func (a *Altar) TryDeposit(tag Tag) Result {
	if a.RewardSpawned {
		return Result{}
	}

	switch {
	case tag == TagSCrystal && !a.HasSCrystal:
		a.HasSCrystal = true
	case tag == TagFCrystal && !a.HasFCrystal:
		a.HasFCrystal = true
	default:
		return Result{}
	}

	res := Result{Accepted: true}
	if a.HasSCrystal && a.HasFCrystal {
		a.RewardSpawned = true
		res.RewardSpawned = true
	}
	return res
}

// Reset empties the altar so it can be completed again.
func (a *Altar) Reset() {
	a.HasSCrystal = false
	a.HasFCrystal = false
	a.RewardSpawned = false
}
