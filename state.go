package bind

// StoreState represents the health of a DocumentStore.
type StoreState int32

const (
	// StoreLoading indicates the store has not read its document yet.
	StoreLoading StoreState = iota

	// StoreHealthy indicates the last load, reload or save succeeded.
	StoreHealthy

	// StoreDegraded indicates the last reload or save failed. The previously
	// loaded document remains in use.
	StoreDegraded

	// StoreEmpty indicates the initial load failed and the store started from
	// an empty document. Values fall back to their constructor defaults.
	StoreEmpty
)

// String returns the string representation of the state.
func (s StoreState) String() string {
	switch s {
	case StoreLoading:
		return "loading"
	case StoreHealthy:
		return "healthy"
	case StoreDegraded:
		return "degraded"
	case StoreEmpty:
		return "empty"
	default:
		return "unknown"
	}
}
