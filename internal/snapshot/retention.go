package snapshot

import "log/slog"

// EnforceRetention evicts oldest snapshots until at most limit remain.
// Protected ids are skipped; if skipping them keeps the count above the
// limit, the evictions still performed are returned together with a
// RetentionViolation. Runs only after the triggering snapshot is durably
// recorded, and is idempotent.
func (s *Store) EnforceRetention(limit int, protected map[string]bool) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}

	snaps, err := s.List()
	if err != nil {
		return nil, err
	}

	var evicted []string
	count := len(snaps)
	for _, snap := range snaps {
		if count <= limit {
			break
		}
		if protected[snap.ID] {
			continue
		}
		if err := s.Delete(snap.ID, nil); err != nil {
			return evicted, err
		}
		slog.Info("evicted snapshot", "id", snap.ID, "label", snap.Label)
		evicted = append(evicted, snap.ID)
		count--
	}

	if count > limit {
		return evicted, &RetentionViolation{Limit: limit, Count: count}
	}
	return evicted, nil
}
