package daemon

// UnitKind distinguishes the two kinds of compactible files.
type UnitKind uint8

const (
	// UnitDatabase is a database's main data file.
	UnitDatabase UnitKind = iota
	// UnitView is one view index file belonging to a database.
	UnitView
)

func (k UnitKind) String() string {
	switch k {
	case UnitDatabase:
		return "database"
	case UnitView:
		return "view"
	default:
		return "unknown"
	}
}

// Unit identifies one compactible file: a database file, or one of its view
// index files. Units are the granularity at which compactions are scheduled
// and at which the at-most-one-in-progress invariant holds.
type Unit struct {
	DB   string
	Kind UnitKind
	View string // set only when Kind is UnitView
}

// DatabaseUnit returns the unit for a database's main file.
func DatabaseUnit(db string) Unit {
	return Unit{DB: db, Kind: UnitDatabase}
}

// ViewUnit returns the unit for one view index file.
func ViewUnit(db, view string) Unit {
	return Unit{DB: db, Kind: UnitView, View: view}
}

// IsView reports whether the unit is a view index file.
func (u Unit) IsView() bool {
	return u.Kind == UnitView
}

func (u Unit) String() string {
	if u.Kind == UnitView {
		return u.DB + "/" + u.View
	}
	return u.DB
}
