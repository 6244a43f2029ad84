// Package view models the client view flow as an explicit state enum with a
// pure projection onto named screen regions. The server never renders; it
// reports the projection to the frontend alongside flow results.
package view

import "time"

// State is one step of the transfer flow UI.
type State int

const (
	Loading State = iota
	SignIn
	SignedIn
	Finished
	FileInput
)

// RegionAction is an overlay region shown on top of some states,
// independent of the mutually exclusive main regions.
const RegionAction = "Action"

// FinishedTimeout is how long the Finished state is shown before the
// client falls back to SignedIn or SignIn.
const FinishedTimeout = 3 * time.Second

func (s State) String() string {
	switch s {
	case Loading:
		return "Loading"
	case SignIn:
		return "SignIn"
	case SignedIn:
		return "SignedIn"
	case Finished:
		return "Finished"
	case FileInput:
		return "FileInput"
	}
	return "Unknown"
}

// Regions returns the set of region names visible in the given state.
// At most one main region is active; RegionAction may be added on top.
func (s State) Regions() []string {
	switch s {
	case Loading:
		return []string{"Loading"}
	case SignIn:
		return []string{"SignIn"}
	case SignedIn:
		return []string{"SignedIn", RegionAction}
	case Finished:
		return []string{"Done", RegionAction}
	case FileInput:
		return []string{"fileInput"}
	}
	return nil
}

// Next returns the state the client falls back to after FinishedTimeout.
// Only Finished decays; every other state is stable.
func Next(s State, signedIn bool) State {
	if s != Finished {
		return s
	}
	if signedIn {
		return SignedIn
	}
	return SignIn
}

// Visibility projects a state onto a set of sibling region names,
// reporting for each whether it should be shown. The overlay region is
// keyed independently of the siblings.
func Visibility(s State, siblings []string) map[string]bool {
	shown := make(map[string]bool, len(siblings)+1)
	regions := s.Regions()
	in := func(name string) bool {
		for _, r := range regions {
			if r == name {
				return true
			}
		}
		return false
	}
	for _, name := range siblings {
		shown[name] = in(name)
	}
	shown[RegionAction] = in(RegionAction)
	return shown
}
