// Package notifier turns OS change notifications for a directory tree into
// backend-independent raw events. Events are raw: they are not filtered,
// de-duplicated or debounced here.
package notifier

import (
	"fmt"
	"os"
)

type Kind uint8

const (
	KindAny Kind = iota
	KindAccess
	KindCreate
	KindModify
	KindRemove
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindAny:
		return "any"
	case KindAccess:
		return "access"
	case KindCreate:
		return "create"
	case KindModify:
		return "modify"
	case KindRemove:
		return "remove"
	case KindOther:
		return "other"
	default:
		return fmt.Sprintf("kind(%d)", k)
	}
}

// ModifyKind refines KindModify events.
type ModifyKind uint8

const (
	ModifyAny ModifyKind = iota
	ModifyData
	ModifyMetadata
	ModifyName
	ModifyOther
)

func (m ModifyKind) String() string {
	switch m {
	case ModifyAny:
		return "any"
	case ModifyData:
		return "data"
	case ModifyMetadata:
		return "metadata"
	case ModifyName:
		return "name"
	case ModifyOther:
		return "other"
	default:
		return fmt.Sprintf("modify(%d)", m)
	}
}

// Event is a single raw notification. Paths are absolute. A non-nil Err
// reports a backend failure and carries no paths.
type Event struct {
	Kind   Kind
	Modify ModifyKind
	Paths  []string
	Err    error
}

// Path returns the first path of the event, or "".
func (e Event) Path() string {
	if len(e.Paths) == 0 {
		return ""
	}
	return e.Paths[0]
}

func (e Event) String() string {
	if e.Err != nil {
		return "error: " + e.Err.Error()
	}
	if e.Kind == KindModify {
		return fmt.Sprintf("%s(%s) %v", e.Kind, e.Modify, e.Paths)
	}
	return fmt.Sprintf("%s %v", e.Kind, e.Paths)
}

// renameEvent classifies a rename notification: the side of the rename that
// still exists is a name change, the side that vanished is a removal.
func renameEvent(path string) Event {
	if _, err := os.Lstat(path); err == nil {
		return Event{Kind: KindModify, Modify: ModifyName, Paths: []string{path}}
	}
	return Event{Kind: KindRemove, Paths: []string{path}}
}
