package cart

type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusInactive   Status = "INACTIVE"
)

var validNext = map[Status]map[Status]bool{
	StatusInProgress: {StatusCompleted: true, StatusInactive: true},
	StatusCompleted:  {},
	StatusInactive:   {},
}

// CanTransition reports whether a cart may move from one status to another.
// COMPLETED is terminal.
func CanTransition(from, to Status) bool {
	return validNext[from][to]
}
