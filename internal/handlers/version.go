package handlers

import (
	"net/http"
)

// VersionInfo is the build information served on /version.
type VersionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
}

// VersionHandler returns a handler writing info with a timestamp.
func VersionHandler(info VersionInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, struct {
			VersionInfo
			Timestamp string `json:"timestamp"`
		}{VersionInfo: info, Timestamp: timestamp()})
	}
}
