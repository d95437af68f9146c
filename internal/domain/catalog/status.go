// Package catalog classifies target database responses.
package catalog

import (
	"strings"

	"github.com/okian/dipscan/internal/domain/model"
)

// Marker substrings matched against the lowercased response body.
const (
	markerNotFound  = "no target found"
	markerPlanet    = "planet name"
	markerEphemeris = "ephemeris"
)

// Classify maps a lookup response body to a catalog status. It never returns
// StatusLookupError; that status is reserved for failed lookups.
func Classify(body string) model.CatalogStatus {
	content := strings.ToLower(body)
	switch {
	case strings.Contains(content, markerNotFound):
		return model.StatusNotFound
	case strings.Contains(content, markerPlanet), strings.Contains(content, markerEphemeris):
		return model.StatusKnownObject
	default:
		return model.StatusNoObjectListed
	}
}

// NumericID strips the catalog prefix from a target identifier,
// e.g. "TIC 307210830" -> "307210830".
func NumericID(targetID string) string {
	id := strings.TrimSpace(targetID)
	if len(id) >= 3 && strings.EqualFold(id[:3], "tic") {
		id = id[3:]
	}
	return strings.TrimSpace(strings.TrimLeft(id, " _-:"))
}

// ParseStatus normalizes a status read from a table cell. Unknown text yields false.
func ParseStatus(s string) (model.CatalogStatus, bool) {
	switch st := model.CatalogStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case model.StatusNotFound, model.StatusKnownObject, model.StatusNoObjectListed, model.StatusLookupError:
		return st, true
	}
	// Older tables carry free-text statuses such as "Not Found".
	if strings.Contains(strings.ToLower(s), "not found") {
		return model.StatusNotFound, true
	}
	return "", false
}
