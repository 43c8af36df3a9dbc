package playlist

import (
	"time"
)

// License types decide who may edit and vote on a playlist.
const (
	LicenseOpen         = "open"
	LicenseInviteOnly   = "invite_only"
	LicenseLocationTime = "location_time"
)

// Playlist carries ownership and licensing. Tracks are modelled as Entry rows.
type Playlist struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsPublic    bool      `json:"isPublic"`
	IsEvent     bool      `json:"isEvent"`
	License     License   `json:"license"`
	// Version increases by one with every committed change to the track list.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
}

// License restricts voting to a time window and an area when Type is location_time.
type License struct {
	Type         string     `json:"type"`
	VoteStart    *time.Time `json:"voteStart,omitempty"`
	VoteEnd      *time.Time `json:"voteEnd,omitempty"`
	Latitude     *float64   `json:"latitude,omitempty"`
	Longitude    *float64   `json:"longitude,omitempty"`
	RadiusMeters *int       `json:"radiusMeters,omitempty"`
}

// Track is a catalog row shared by every playlist that references it.
type Track struct {
	ID            string `json:"id"`
	DeezerTrackID int64  `json:"deezerTrackId"`
	Title         string `json:"title"`
	Artist        string `json:"artist"`
	Album         string `json:"album"`
	URL           string `json:"url"`
}

// Entry places one track inside one playlist. Positions of a playlist's entries are
// always 0..n-1 once a transaction commits.
type Entry struct {
	ID         string `json:"entryId"`
	PlaylistID string `json:"-"`
	Position   int    `json:"position"`
	Points     int    `json:"points"`
	Track      Track  `json:"track"`
}

// Actor is the authenticated user performing a request. Lat/Lng are only consulted for
// location-restricted voting.
type Actor struct {
	UserID string
	Lat    *float64
	Lng    *float64
}

// AddTrackRequest names a track either by catalog id or by Deezer id. Exactly one is set.
type AddTrackRequest struct {
	TrackID       string `json:"trackId"`
	DeezerTrackID int64  `json:"deezerTrackId"`
}

// MoveRequest relocates RangeLength entries starting at RangeStart in front of InsertBefore.
type MoveRequest struct {
	RangeStart   int  `json:"rangeStart"`
	RangeLength  *int `json:"rangeLength,omitempty"`
	InsertBefore int  `json:"insertBefore"`
}

// Length returns RangeLength, defaulting to a single entry.
func (r MoveRequest) Length() int {
	if r.RangeLength == nil {
		return 1
	}
	return *r.RangeLength
}

type VoteRequest struct {
	RangeStart int      `json:"rangeStart"`
	Lat        *float64 `json:"lat,omitempty"`
	Lng        *float64 `json:"lng,omitempty"`
}

type CreatePlaylistRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsPublic    *bool  `json:"isPublic,omitempty"`
	IsEvent     bool   `json:"isEvent"`
	LicenseType string `json:"licenseType"`
}

// UpdatePlaylistRequest changes only the fields that are set.
type UpdatePlaylistRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	IsPublic    *bool   `json:"isPublic,omitempty"`
	IsEvent     *bool   `json:"isEvent,omitempty"`
}

type PlaylistView struct {
	Playlist Playlist `json:"playlist"`
	Tracks   []Entry  `json:"tracks"`
}
