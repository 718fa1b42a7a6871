package health

// Cached collections are treated as immutable: every helper returns a new
// slice and leaves its input alone.

type identified interface {
	EntityID() string
}

func indexByID[T identified](list []T, id string) int {
	for i, v := range list {
		if v.EntityID() == id {
			return i
		}
	}
	return -1
}

func findByID[T identified](list []T, id string) (T, bool) {
	if i := indexByID(list, id); i >= 0 {
		return list[i], true
	}
	var zero T
	return zero, false
}

func appendEntity[T identified](list []T, v T) []T {
	out := make([]T, 0, len(list)+1)
	out = append(out, list...)
	return append(out, v)
}

// confirmEntity swaps the entity with tempID for v in place. If v is already
// in the list (a refetch brought it in) the temporary entry is dropped; if
// neither is present v is appended. The result holds v exactly once.
func confirmEntity[T identified](list []T, tempID string, v T) []T {
	out := make([]T, 0, len(list)+1)
	placed := false
	for _, cur := range list {
		switch cur.EntityID() {
		case tempID:
			if indexByID(list, v.EntityID()) >= 0 && tempID != v.EntityID() {
				continue
			}
			if !placed {
				out = append(out, v)
				placed = true
			}
		case v.EntityID():
			if !placed {
				out = append(out, v)
				placed = true
			}
		default:
			out = append(out, cur)
		}
	}
	if !placed {
		out = append(out, v)
	}
	return out
}

// replaceEntity swaps the entity with id for v, leaving the list unchanged if
// id is absent.
func replaceEntity[T identified](list []T, id string, v T) []T {
	i := indexByID(list, id)
	if i < 0 {
		return list
	}
	out := make([]T, len(list))
	copy(out, list)
	out[i] = v
	return out
}

func removeEntity[T identified](list []T, id string) []T {
	out := make([]T, 0, len(list))
	for _, v := range list {
		if v.EntityID() != id {
			out = append(out, v)
		}
	}
	return out
}

// insertEntity puts v back at index i, or at the end when i is out of range.
// Nothing happens if v is already present.
func insertEntity[T identified](list []T, i int, v T) []T {
	if indexByID(list, v.EntityID()) >= 0 {
		return list
	}
	if i < 0 || i > len(list) {
		i = len(list)
	}
	out := make([]T, 0, len(list)+1)
	out = append(out, list[:i]...)
	out = append(out, v)
	return append(out, list[i:]...)
}
