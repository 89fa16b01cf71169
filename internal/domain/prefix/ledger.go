package prefix

import "github.com/ganot/taskdeck/internal/domain/task"

// Ledger is an append-only record of prefix assignments. Once a project has
// been assigned a prefix it keeps it forever; only projects absent from the
// ledger are assigned, against the set of prefixes already claimed. This
// keeps existing ticket keys stable when new projects appear.
type Ledger struct {
	Assignments map[string]string `json:"assignments"` // projectID -> prefix
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{Assignments: map[string]string{}}
}

// Assign folds any unassigned projects into the ledger and returns the full
// projectID→prefix and prefix→projectID maps. New projects are processed in
// collated name order for determinism within a single pass.
func (l *Ledger) Assign(projects []task.Project, minLength int) (map[string]string, map[string]string) {
	if l.Assignments == nil {
		l.Assignments = map[string]string{}
	}

	taken := make(map[string]bool, len(l.Assignments))
	for _, prefix := range l.Assignments {
		taken[prefix] = true
	}

	for _, p := range sortByName(projects) {
		if _, ok := l.Assignments[p.ID]; ok {
			continue
		}
		prefix := Generate(p.Name, taken, minLength)
		taken[prefix] = true
		l.Assignments[p.ID] = prefix
	}

	idToPrefix := make(map[string]string, len(l.Assignments))
	prefixToID := make(map[string]string, len(l.Assignments))
	for id, prefix := range l.Assignments {
		idToPrefix[id] = prefix
		prefixToID[prefix] = id
	}
	return idToPrefix, prefixToID
}
