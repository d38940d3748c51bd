package manifest

// TreeStatus is the saved/unsaved state of a working tree relative to its
// most recent snapshot.
type TreeStatus string

const (
	StatusSaved   TreeStatus = "saved"
	StatusUnsaved TreeStatus = "unsaved"
)

// DetectStatus compares a freshly built manifest to the latest snapshot's
// manifest. last is nil when the project has no snapshots yet; any non-empty
// tree is then unsaved. Pure comparison, safe to call on any schedule.
func DetectStatus(current, last Manifest) TreeStatus {
	if last == nil {
		if len(current) == 0 {
			return StatusSaved
		}
		return StatusUnsaved
	}
	if current.Equal(last) {
		return StatusSaved
	}
	return StatusUnsaved
}
