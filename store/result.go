package store

type AddStatus int

const (
	// Nothing was given, storage was not touched.
	AddEmpty AddStatus = iota
	// At least one new record was stored.
	AddInserted
	// Every record was already stored.
	AddDuplicate
	// Nothing was stored, see AddResult.Err.
	AddFailed
)

func (s AddStatus) String() string {
	switch s {
	case AddEmpty:
		return "empty"
	case AddInserted:
		return "inserted"
	case AddDuplicate:
		return "duplicate"
	case AddFailed:
		return "failed"
	}
	return "unknown"
}

type AddResult struct {
	Status   AddStatus
	Inserted int64
	Err      error
}

// Ok is true when the records are in storage after the call.
func (r AddResult) Ok() bool {
	return r.Status == AddInserted || r.Status == AddDuplicate
}
