package playlist

import (
	"net/http"
)

// Error is a failure the caller can act on. Code is stable across releases.
type Error struct {
	Code    string
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches on Code so that errors carrying a custom message (ErrForbidden with a policy
// reason) still satisfy errors.Is against the sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func (e *Error) withMessage(msg string) *Error {
	return &Error{Code: e.Code, Status: e.Status, Message: msg}
}

var (
	ErrInvalidRange         = &Error{Code: "invalid_range", Status: http.StatusBadRequest, Message: "Invalid range"}
	ErrInvalidIndex         = &Error{Code: "invalid_index", Status: http.StatusBadRequest, Message: "Invalid track index"}
	ErrDuplicateTrack       = &Error{Code: "duplicate_track", Status: http.StatusBadRequest, Message: "Track already in playlist"}
	ErrPlaylistNotFound     = &Error{Code: "playlist_not_found", Status: http.StatusNotFound, Message: "Playlist not found"}
	ErrEntryNotFound        = &Error{Code: "entry_not_found", Status: http.StatusNotFound, Message: "Track not found in playlist"}
	ErrTrackNotFound        = &Error{Code: "track_not_found", Status: http.StatusNotFound, Message: "Track not found"}
	ErrAlreadyVoted         = &Error{Code: "already_voted", Status: http.StatusForbidden, Message: "You have already voted for this playlist"}
	ErrUpstreamLookupFailed = &Error{Code: "upstream_lookup_failed", Status: http.StatusNotFound, Message: "Track not found on Deezer"}
	ErrUpstreamUnavailable  = &Error{Code: "upstream_unavailable", Status: http.StatusBadGateway, Message: "Track search is unavailable"}
	ErrForbidden            = &Error{Code: "forbidden", Status: http.StatusForbidden, Message: "Permission denied for this playlist"}
	ErrVotingClosed         = &Error{Code: "voting_closed", Status: http.StatusForbidden, Message: "Voting is not allowed right now"}
	ErrInvalidRequest       = &Error{Code: "invalid_request", Status: http.StatusBadRequest, Message: "Invalid request"}
)
