package utils

import "github.com/denisbrodbeck/machineid"

// HWID is a stable, app-scoped identifier of this machine. Backup records
// carry it so a mirror shared between machines can be untangled later.
var HWID = getHWID()

func getHWID() string {
	id, err := machineid.ProtectedID("snapbox")
	if err != nil {
		return "unknown"
	}
	return id
}
