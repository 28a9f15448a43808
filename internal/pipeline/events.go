package pipeline

// EventKind is the closed set of filesystem change kinds the pipeline
// dispatches on (spec §4.5).
type EventKind uint8

const (
	Added EventKind = iota
	Changed
	Deleted
	Renamed
)

func (k EventKind) String() string {
	switch k {
	case Added:
		return "Added"
	case Changed:
		return "Changed"
	case Deleted:
		return "Deleted"
	case Renamed:
		return "Renamed"
	default:
		return "Unknown"
	}
}

// FileEvent is one filesystem change notification consumed by the
// pipeline (spec §6). OldPath is set only for Renamed.
type FileEvent struct {
	Kind    EventKind
	Path    string
	OldPath string
}
