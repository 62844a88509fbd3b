package permission

import "fmt"

// Level is a permission tier on a list. The set is closed and totally
// ordered; comparison is numeric.
type Level int

const (
	LevelViewer Level = 1
	LevelEditor Level = 2
	LevelOwner  Level = 3
)

func (l Level) String() string {
	switch l {
	case LevelViewer:
		return "VIEWER"
	case LevelEditor:
		return "EDITOR"
	case LevelOwner:
		return "OWNER"
	default:
		return "NONE"
	}
}

func (l Level) Valid() bool {
	return l >= LevelViewer && l <= LevelOwner
}

// Meets reports whether a user holding level l satisfies a requirement of
// level required.
func (l Level) Meets(required Level) bool {
	return l >= required
}

func (l Level) MarshalJSON() ([]byte, error) {
	return []byte(`"` + l.String() + `"`), nil
}

// ParseLevel maps the wire/store representation of a tier back to a Level.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "VIEWER":
		return LevelViewer, nil
	case "EDITOR":
		return LevelEditor, nil
	case "OWNER":
		return LevelOwner, nil
	default:
		return 0, fmt.Errorf("unknown permission level %q", s)
	}
}

// Operation is a class of action checked against a user's capabilities.
type Operation string

const (
	OpRead   Operation = "READ"
	OpWrite  Operation = "WRITE"
	OpDelete Operation = "DELETE"
	OpManage Operation = "MANAGE"
)

// Allows reports whether a tier grants an operation class. Capabilities are
// monotonic in the tier: reads at VIEWER, writes and deletes at EDITOR,
// share management at OWNER only.
func (l Level) Allows(op Operation) bool {
	switch op {
	case OpRead:
		return l.Meets(LevelViewer)
	case OpWrite, OpDelete:
		return l.Meets(LevelEditor)
	case OpManage:
		return l.Meets(LevelOwner)
	default:
		return false
	}
}
