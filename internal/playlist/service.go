package playlist

import (
	"context"
	"errors"
	"strings"
	"time"

	"musicroom/internal/deezer"
	"musicroom/internal/logger"
	"musicroom/internal/sequence"
)

const (
	defaultBroadcastTimeout = 5 * time.Second

	maxNameLen        = 200
	maxDescriptionLen = 1000
)

// TrackLookup resolves tracks that are not yet in the local catalog.
type TrackLookup interface {
	GetTrack(ctx context.Context, id int64) (*deezer.Track, error)
	SearchTracks(ctx context.Context, query string, limit int) ([]deezer.Track, error)
}

// Service runs every playlist mutation inside one store transaction holding the
// playlist lock, then hands the resulting snapshot to the broadcaster.
type Service struct {
	store    Store
	lookup   TrackLookup
	policy   Policy
	dispatch *dispatcher

	broadcaster      Broadcaster
	broadcastTimeout time.Duration
	now              func() time.Time
}

type ServiceOption func(*Service)

func WithBroadcastTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.broadcastTimeout = d
		}
	}
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, lookup TrackLookup, policy Policy, broadcaster Broadcaster, opts ...ServiceOption) *Service {
	if broadcaster == nil {
		broadcaster = NopBroadcaster{}
	}
	s := &Service{
		store:            store,
		lookup:           lookup,
		policy:           policy,
		broadcaster:      broadcaster,
		broadcastTimeout: defaultBroadcastTimeout,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.dispatch = newDispatcher(s.broadcaster, s.broadcastTimeout)
	return s
}

// Drain blocks until every in-flight broadcast has finished.
func (s *Service) Drain() {
	s.dispatch.wait()
}

// Tracks returns the ordered snapshot of a playlist.
func (s *Service) Tracks(ctx context.Context, playlistID, userID string) ([]Entry, error) {
	p, err := s.store.GetPlaylist(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.CanView(ctx, p, userID); err != nil {
		return nil, err
	}
	return s.store.ListOrdered(ctx, playlistID)
}

// AddTrack appends a track at the tail of the playlist.
func (s *Service) AddTrack(ctx context.Context, playlistID, userID string, req AddTrackRequest) ([]Entry, error) {
	if err := validateAddTrack(req); err != nil {
		return nil, err
	}
	if err := s.authorizeEdit(ctx, playlistID, userID); err != nil {
		return nil, err
	}

	track, err := s.resolveTrack(ctx, req)
	if err != nil {
		return nil, err
	}

	var (
		entries []Entry
		version int64
	)
	err = s.store.InTx(ctx, func(tx Tx) error {
		var err error
		if version, err = lockForChange(ctx, tx, playlistID); err != nil {
			return err
		}
		if _, err := tx.Append(ctx, playlistID, track.ID); err != nil {
			return err
		}
		entries, err = tx.ListOrdered(ctx, playlistID)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info().
		Str("playlist_id", playlistID).
		Str("track_id", track.ID).
		Str("user_id", userID).
		Int("tracks", len(entries)).
		Msg("track added")

	s.broadcast(ctx, playlistID, version, entries)
	return entries, nil
}

// Move relocates a contiguous block of entries and renumbers the playlist.
func (s *Service) Move(ctx context.Context, playlistID, userID string, req MoveRequest) ([]Entry, error) {
	if req.RangeStart < 0 || req.Length() < 1 || req.InsertBefore < 0 {
		return nil, ErrInvalidRange
	}
	if err := s.authorizeEdit(ctx, playlistID, userID); err != nil {
		return nil, err
	}

	var (
		entries []Entry
		version int64
	)
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		if version, err = lockForChange(ctx, tx, playlistID); err != nil {
			return err
		}
		current, err := tx.ListOrdered(ctx, playlistID)
		if err != nil {
			return err
		}

		order, err := sequence.Move(entryIDs(current), req.RangeStart, req.Length(), req.InsertBefore)
		if errors.Is(err, sequence.ErrInvalidRange) {
			return ErrInvalidRange
		}
		if err != nil {
			return err
		}

		next, changed := resequence(current, order)
		if err := tx.ApplyPositions(ctx, playlistID, changed); err != nil {
			return err
		}
		entries = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info().
		Str("playlist_id", playlistID).
		Str("user_id", userID).
		Int("range_start", req.RangeStart).
		Int("range_length", req.Length()).
		Int("insert_before", req.InsertBefore).
		Msg("tracks reordered")

	s.broadcast(ctx, playlistID, version, entries)
	return entries, nil
}

// DeleteEntry removes one entry and closes the gap it leaves.
func (s *Service) DeleteEntry(ctx context.Context, playlistID, userID, entryID string) ([]Entry, error) {
	if err := s.authorizeEdit(ctx, playlistID, userID); err != nil {
		return nil, err
	}

	var (
		entries []Entry
		version int64
	)
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		if version, err = lockForChange(ctx, tx, playlistID); err != nil {
			return err
		}
		if err := tx.Delete(ctx, playlistID, entryID); err != nil {
			return err
		}
		remaining, err := tx.ListOrdered(ctx, playlistID)
		if err != nil {
			return err
		}

		next, changed := resequence(remaining, entryIDs(remaining))
		if err := tx.ApplyPositions(ctx, playlistID, changed); err != nil {
			return err
		}
		entries = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info().
		Str("playlist_id", playlistID).
		Str("entry_id", entryID).
		Str("user_id", userID).
		Msg("track deleted")

	s.broadcast(ctx, playlistID, version, entries)
	return entries, nil
}

// Vote spends the actor's single vote for this playlist on the entry at index.
func (s *Service) Vote(ctx context.Context, playlistID string, actor Actor, index int) ([]Entry, error) {
	p, err := s.store.GetPlaylist(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.CanVote(ctx, p, actor, s.now()); err != nil {
		return nil, err
	}

	var (
		entries []Entry
		version int64
	)
	err = s.store.InTx(ctx, func(tx Tx) error {
		var err error
		if version, err = lockForChange(ctx, tx, playlistID); err != nil {
			return err
		}
		current, err := tx.ListOrdered(ctx, playlistID)
		if err != nil {
			return err
		}
		if err := castVote(ctx, tx, playlistID, actor.UserID, current, index); err != nil {
			return err
		}
		entries = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info().
		Str("playlist_id", playlistID).
		Str("user_id", actor.UserID).
		Str("entry_id", entries[index].ID).
		Int("points", entries[index].Points).
		Msg("vote recorded")

	s.broadcast(ctx, playlistID, version, entries)
	return entries, nil
}

// SearchTracks proxies a free-text search to the track lookup.
func (s *Service) SearchTracks(ctx context.Context, query string, limit int) ([]Track, error) {
	if s.lookup == nil {
		return nil, ErrUpstreamUnavailable
	}
	found, err := s.lookup.SearchTracks(ctx, query, limit)
	if err != nil {
		logger.Log.Warn().Err(err).Str("query", query).Msg("deezer search failed")
		return nil, ErrUpstreamUnavailable
	}
	out := make([]Track, 0, len(found))
	for _, t := range found {
		out = append(out, fromDeezer(t))
	}
	return out, nil
}

func (s *Service) CreatePlaylist(ctx context.Context, ownerID string, req CreatePlaylistRequest) (*Playlist, error) {
	name, err := validName(req.Name)
	if err != nil {
		return nil, err
	}
	description := strings.TrimSpace(req.Description)
	if len(description) > maxDescriptionLen {
		return nil, ErrInvalidRequest.withMessage("description is too long")
	}
	licenseType := req.LicenseType
	if licenseType == "" {
		licenseType = LicenseOpen
	}
	if !validLicenseType(licenseType) {
		return nil, ErrInvalidRequest.withMessage("licenseType must be open, invite_only or location_time")
	}
	isPublic := true
	if req.IsPublic != nil {
		isPublic = *req.IsPublic
	}

	p := &Playlist{
		OwnerID:     ownerID,
		Name:        name,
		Description: description,
		IsPublic:    isPublic,
		IsEvent:     req.IsEvent,
		License:     License{Type: licenseType},
	}
	if err := s.store.CreatePlaylist(ctx, p); err != nil {
		return nil, err
	}

	logger.Log.Info().Str("playlist_id", p.ID).Str("user_id", ownerID).Msg("playlist created")
	return p, nil
}

func (s *Service) GetPlaylist(ctx context.Context, playlistID, userID string) (*PlaylistView, error) {
	p, err := s.store.GetPlaylist(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.CanView(ctx, p, userID); err != nil {
		return nil, err
	}
	entries, err := s.store.ListOrdered(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	return &PlaylistView{Playlist: *p, Tracks: entries}, nil
}

// ListPlaylists returns the playlists userID can see, newest first. A non-nil event keeps
// only events or only regular playlists.
func (s *Service) ListPlaylists(ctx context.Context, userID string, event *bool) ([]Playlist, error) {
	return s.store.ListPlaylists(ctx, userID, event)
}

// UpdatePlaylist changes name, description, visibility and the event flag. Owner only.
func (s *Service) UpdatePlaylist(ctx context.Context, playlistID, userID string, req UpdatePlaylistRequest) (*Playlist, error) {
	p, err := s.requireOwner(ctx, playlistID, userID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name, err := validName(*req.Name)
		if err != nil {
			return nil, err
		}
		p.Name = name
	}
	if req.Description != nil {
		description := strings.TrimSpace(*req.Description)
		if len(description) > maxDescriptionLen {
			return nil, ErrInvalidRequest.withMessage("description is too long")
		}
		p.Description = description
	}
	if req.IsPublic != nil {
		p.IsPublic = *req.IsPublic
	}
	if req.IsEvent != nil {
		p.IsEvent = *req.IsEvent
	}

	if err := s.store.UpdatePlaylist(ctx, p); err != nil {
		return nil, err
	}

	logger.Log.Info().
		Str("playlist_id", playlistID).
		Str("user_id", userID).
		Bool("is_public", p.IsPublic).
		Bool("is_event", p.IsEvent).
		Msg("playlist updated")
	return p, nil
}

// DeletePlaylist removes the playlist with all of its entries, invites and votes. Owner only.
func (s *Service) DeletePlaylist(ctx context.Context, playlistID, userID string) error {
	if _, err := s.requireOwner(ctx, playlistID, userID); err != nil {
		return err
	}
	if err := s.store.DeletePlaylist(ctx, playlistID); err != nil {
		return err
	}

	logger.Log.Info().Str("playlist_id", playlistID).Str("user_id", userID).Msg("playlist deleted")
	return nil
}

// UpdateLicense replaces the playlist's license. Owner only.
func (s *Service) UpdateLicense(ctx context.Context, playlistID, userID string, l License) (*Playlist, error) {
	if err := validateLicense(l); err != nil {
		return nil, err
	}
	p, err := s.requireOwner(ctx, playlistID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateLicense(ctx, playlistID, l); err != nil {
		return nil, err
	}
	p.License = l

	logger.Log.Info().Str("playlist_id", playlistID).Str("license", l.Type).Msg("license updated")
	return p, nil
}

func (s *Service) AddInvite(ctx context.Context, playlistID, userID, inviteeID string) error {
	if inviteeID == "" {
		return ErrInvalidRequest.withMessage("userId is required")
	}
	p, err := s.requireOwner(ctx, playlistID, userID)
	if err != nil {
		return err
	}
	if inviteeID == p.OwnerID {
		return ErrInvalidRequest.withMessage("owner cannot be invited")
	}
	return s.store.AddInvite(ctx, playlistID, inviteeID)
}

func (s *Service) RemoveInvite(ctx context.Context, playlistID, userID, inviteeID string) error {
	if _, err := s.requireOwner(ctx, playlistID, userID); err != nil {
		return err
	}
	return s.store.RemoveInvite(ctx, playlistID, inviteeID)
}

func (s *Service) authorizeEdit(ctx context.Context, playlistID, userID string) error {
	p, err := s.store.GetPlaylist(ctx, playlistID)
	if err != nil {
		return err
	}
	return s.policy.CanEdit(ctx, p, userID)
}

func (s *Service) requireOwner(ctx context.Context, playlistID, userID string) (*Playlist, error) {
	p, err := s.store.GetPlaylist(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != userID {
		return nil, ErrForbidden.withMessage("only the owner can manage this playlist")
	}
	return p, nil
}

// resolveTrack finds the catalog row for req, importing it from Deezer when only the
// Deezer id is known.
func (s *Service) resolveTrack(ctx context.Context, req AddTrackRequest) (*Track, error) {
	if req.TrackID != "" {
		return s.store.GetTrack(ctx, req.TrackID)
	}

	t, err := s.store.FindTrackByDeezerID(ctx, req.DeezerTrackID)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, ErrTrackNotFound) {
		return nil, err
	}
	if s.lookup == nil {
		return nil, ErrUpstreamLookupFailed
	}

	found, err := s.lookup.GetTrack(ctx, req.DeezerTrackID)
	if err != nil {
		logger.Log.Warn().Err(err).Int64("deezer_track_id", req.DeezerTrackID).Msg("deezer lookup failed")
		return nil, ErrUpstreamLookupFailed
	}

	imported := fromDeezer(*found)
	if err := s.store.UpsertTrack(ctx, &imported); err != nil {
		return nil, err
	}
	return &imported, nil
}

// broadcast queues a copy of entries for publishing without blocking the caller.
func (s *Service) broadcast(ctx context.Context, playlistID string, version int64, entries []Entry) {
	cp := make([]Entry, len(entries))
	copy(cp, entries)

	s.dispatch.enqueue(snapshot{
		ctx:        ctx,
		playlistID: playlistID,
		version:    version,
		entries:    cp,
	})
}

// lockForChange takes the playlist lock and claims the version the change commits as.
func lockForChange(ctx context.Context, tx Tx, playlistID string) (int64, error) {
	if _, err := tx.LockPlaylist(ctx, playlistID); err != nil {
		return 0, err
	}
	return tx.BumpVersion(ctx, playlistID)
}

func fromDeezer(t deezer.Track) Track {
	return Track{
		DeezerTrackID: t.ID,
		Title:         t.Title,
		Artist:        t.Artist.Name,
		Album:         t.Album.Title,
		URL:           t.Link,
	}
}

func validateAddTrack(req AddTrackRequest) error {
	hasID := req.TrackID != ""
	hasDeezer := req.DeezerTrackID != 0
	if hasID == hasDeezer {
		return ErrInvalidRequest.withMessage("exactly one of trackId or deezerTrackId is required")
	}
	if req.DeezerTrackID < 0 {
		return ErrInvalidRequest.withMessage("deezerTrackId must be positive")
	}
	return nil
}

func validName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" || len(name) > maxNameLen {
		return "", ErrInvalidRequest.withMessage("name must be between 1 and 200 characters")
	}
	return name, nil
}

func validLicenseType(t string) bool {
	switch t {
	case LicenseOpen, LicenseInviteOnly, LicenseLocationTime:
		return true
	}
	return false
}

func validateLicense(l License) error {
	if !validLicenseType(l.Type) {
		return ErrInvalidRequest.withMessage("license type must be open, invite_only or location_time")
	}
	if l.VoteStart != nil && l.VoteEnd != nil && l.VoteEnd.Before(*l.VoteStart) {
		return ErrInvalidRequest.withMessage("voteEnd must not be before voteStart")
	}
	geo := 0
	for _, set := range []bool{l.Latitude != nil, l.Longitude != nil, l.RadiusMeters != nil} {
		if set {
			geo++
		}
	}
	if geo != 0 && geo != 3 {
		return ErrInvalidRequest.withMessage("latitude, longitude and radiusMeters must be set together")
	}
	if l.RadiusMeters != nil && *l.RadiusMeters <= 0 {
		return ErrInvalidRequest.withMessage("radiusMeters must be positive")
	}
	if l.Latitude != nil && (*l.Latitude < -90 || *l.Latitude > 90) {
		return ErrInvalidRequest.withMessage("latitude out of range")
	}
	if l.Longitude != nil && (*l.Longitude < -180 || *l.Longitude > 180) {
		return ErrInvalidRequest.withMessage("longitude out of range")
	}
	return nil
}
