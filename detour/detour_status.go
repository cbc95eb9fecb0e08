package detour

// QueryStatus is the outcome of a path query. Only QuerySuccess carries a
// result; the others are expected outcomes rather than errors.
type QueryStatus uint8

const (
	QuerySuccess QueryStatus = iota
	// QueryStartNotFound: no polygon within the search radius of the start.
	QueryStartNotFound
	// QueryEndNotFound: no polygon within the search radius of the end.
	QueryEndNotFound
	// QueryNoPath: the endpoints lie on disconnected parts of the mesh.
	QueryNoPath
	// QueryInvalidPath: a polygon path refers to missing tiles or
	// polygons that are not adjacent.
	QueryInvalidPath
)

func (s QueryStatus) String() string {
	switch s {
	case QuerySuccess:
		return "success"
	case QueryStartNotFound:
		return "start not found"
	case QueryEndNotFound:
		return "end not found"
	case QueryNoPath:
		return "no path"
	case QueryInvalidPath:
		return "invalid path"
	}
	return "unknown"
}
