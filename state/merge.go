package state

// MergeByID appends the items of a fetched page onto an existing list,
// skipping any id already present. It returns the merged list and the number
// of net-new items. When nothing is new the original list is returned
// unchanged (same backing array), which is what lets AppendPage treat a
// fully-duplicate page as a no-op.
//
// Merging the same page twice therefore yields exactly the same list as
// merging it once.
func MergeByID[T Entity](existing, page []T) ([]T, int) {
	if len(page) == 0 {
		return existing, 0
	}

	seen := make(map[string]struct{}, len(existing))
	for _, e := range existing {
		seen[e.EntityID()] = struct{}{}
	}

	var fresh []T
	for _, e := range page {
		id := e.EntityID()
		if _, dup := seen[id]; dup {
			continue
		}
		// A page can repeat an id within itself; first occurrence wins.
		seen[id] = struct{}{}
		fresh = append(fresh, e)
	}

	if len(fresh) == 0 {
		return existing, 0
	}

	merged := make([]T, 0, len(existing)+len(fresh))
	merged = append(merged, existing...)
	merged = append(merged, fresh...)
	return merged, len(fresh)
}

// ApplyPage writes one fetched page into a slice according to the endpoint's
// declared list mode. Replace discards and installs; Append merges by id,
// except that page 1 always replaces (a fresh scroll session). The page
// metadata is installed either way.
func ApplyPage[T Entity, D Entity](s *Slice[T, D], mode ListMode, pageNumber int, items []T, info PageInfo) error {
	if mode == Replace || pageNumber <= 1 {
		s.ClearList()
		if err := s.SetList(items); err != nil {
			return err
		}
	} else if _, err := s.AppendPage(items); err != nil {
		return err
	}
	s.SetPageInfo(info)
	return nil
}
