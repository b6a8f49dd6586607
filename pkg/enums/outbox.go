package enums

import "fmt"

// OperationAction is the mutation an offline operation replays against the hosted store.
type OperationAction string

const (
	ActionCreate OperationAction = "create"
	ActionUpdate OperationAction = "update"
	ActionDelete OperationAction = "delete"
)

var validOperationActions = []OperationAction{
	ActionCreate,
	ActionUpdate,
	ActionDelete,
}

// IsValid reports whether the value matches a known action.
func (a OperationAction) IsValid() bool {
	for _, candidate := range validOperationActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// RequiresRecordID reports whether the action targets an existing row.
func (a OperationAction) RequiresRecordID() bool {
	return a == ActionUpdate || a == ActionDelete
}

// ParseOperationAction converts raw input into OperationAction.
func ParseOperationAction(value string) (OperationAction, error) {
	for _, candidate := range validOperationActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid operation action %q", value)
}
