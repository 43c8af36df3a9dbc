package playlist

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"musicroom/internal/deezer"
	"musicroom/internal/sequence"
)

// memStore is an in-memory Store. Every single-row position write is checked against
// the (playlist, position) uniqueness rule, like the Postgres index.
type memStore struct {
	mu sync.Mutex

	playlists map[string]*Playlist
	invites   map[string]map[string]bool
	tracks    map[string]Track
	entries   map[string][]*memEntry
	votes     map[string]map[string]bool

	// singlePhase makes ApplyPositions write final positions directly.
	singlePhase bool
	failApply   error
	writes      int
}

type memEntry struct {
	id       string
	trackID  string
	position int
	points   int
}

func newMemStore() *memStore {
	return &memStore{
		playlists: map[string]*Playlist{},
		invites:   map[string]map[string]bool{},
		tracks:    map[string]Track{},
		entries:   map[string][]*memEntry{},
		votes:     map[string]map[string]bool{},
	}
}

type memSnapshot struct {
	entries  map[string][]memEntry
	votes    map[string]map[string]bool
	versions map[string]int64
}

func (s *memStore) snapshot() memSnapshot {
	snap := memSnapshot{
		entries:  map[string][]memEntry{},
		votes:    map[string]map[string]bool{},
		versions: map[string]int64{},
	}
	for id, p := range s.playlists {
		snap.versions[id] = p.Version
	}
	for pid, list := range s.entries {
		for _, e := range list {
			snap.entries[pid] = append(snap.entries[pid], *e)
		}
	}
	for pid, users := range s.votes {
		snap.votes[pid] = map[string]bool{}
		for u := range users {
			snap.votes[pid][u] = true
		}
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.entries = map[string][]*memEntry{}
	for pid, list := range snap.entries {
		for i := range list {
			e := list[i]
			s.entries[pid] = append(s.entries[pid], &e)
		}
	}
	s.votes = snap.votes
	for id, v := range snap.versions {
		if p, ok := s.playlists[id]; ok {
			p.Version = v
		}
	}
}

func (s *memStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(&memTx{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *memStore) GetPlaylist(ctx context.Context, id string) (*Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getPlaylist(id)
}

func (s *memStore) getPlaylist(id string) (*Playlist, error) {
	p, ok := s.playlists[id]
	if !ok {
		return nil, ErrPlaylistNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) ListOrdered(ctx context.Context, playlistID string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listOrdered(playlistID), nil
}

func (s *memStore) listOrdered(playlistID string) []Entry {
	out := make([]Entry, 0, len(s.entries[playlistID]))
	for _, e := range s.entries[playlistID] {
		out = append(out, Entry{
			ID:         e.id,
			PlaylistID: playlistID,
			Position:   e.position,
			Points:     e.points,
			Track:      s.tracks[e.trackID],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func (s *memStore) IsInvited(ctx context.Context, playlistID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invites[playlistID][userID], nil
}

func (s *memStore) ListPlaylists(ctx context.Context, userID string, event *bool) ([]Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Playlist, 0)
	for id, p := range s.playlists {
		visible := p.IsPublic || (userID != "" && (p.OwnerID == userID || s.invites[id][userID]))
		if !visible || (event != nil && p.IsEvent != *event) {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) UpdatePlaylist(ctx context.Context, p *Playlist) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.playlists[p.ID]
	if !ok {
		return ErrPlaylistNotFound
	}
	existing.Name = p.Name
	existing.Description = p.Description
	existing.IsPublic = p.IsPublic
	existing.IsEvent = p.IsEvent
	return nil
}

// DeletePlaylist cascades to entries, invites and votes like the foreign keys do.
func (s *memStore) DeletePlaylist(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.playlists[id]; !ok {
		return ErrPlaylistNotFound
	}
	delete(s.playlists, id)
	delete(s.entries, id)
	delete(s.invites, id)
	delete(s.votes, id)
	return nil
}

func (s *memStore) CreatePlaylist(ctx context.Context, p *Playlist) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = uuid.NewString()
	p.CreatedAt = time.Now().UTC()
	cp := *p
	s.playlists[p.ID] = &cp
	return nil
}

func (s *memStore) UpdateLicense(ctx context.Context, playlistID string, l License) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.playlists[playlistID]
	if !ok {
		return ErrPlaylistNotFound
	}
	p.License = l
	return nil
}

func (s *memStore) AddInvite(ctx context.Context, playlistID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.invites[playlistID] == nil {
		s.invites[playlistID] = map[string]bool{}
	}
	s.invites[playlistID][userID] = true
	return nil
}

func (s *memStore) RemoveInvite(ctx context.Context, playlistID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.invites[playlistID], userID)
	return nil
}

func (s *memStore) GetTrack(ctx context.Context, id string) (*Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tracks[id]
	if !ok {
		return nil, ErrTrackNotFound
	}
	return &t, nil
}

func (s *memStore) FindTrackByDeezerID(ctx context.Context, deezerID int64) (*Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tracks {
		if t.DeezerTrackID == deezerID {
			found := t
			return &found, nil
		}
	}
	return nil, ErrTrackNotFound
}

func (s *memStore) UpsertTrack(ctx context.Context, t *Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.tracks {
		if existing.DeezerTrackID == t.DeezerTrackID {
			t.ID = id
			s.tracks[id] = *t
			return nil
		}
	}
	t.ID = uuid.NewString()
	s.tracks[t.ID] = *t
	return nil
}

// addTrack seeds the catalog and returns the new track id.
func (s *memStore) addTrack(title string, deezerID int64) string {
	t := Track{DeezerTrackID: deezerID, Title: title, Artist: "artist " + title}
	_ = s.UpsertTrack(context.Background(), &t)
	return t.ID
}

func (s *memStore) positions(playlistID string) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.listOrdered(playlistID)
	out := make([]int, len(list))
	for i, e := range list {
		out[i] = e.Position
	}
	return out
}

func (s *memStore) titles(playlistID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.listOrdered(playlistID)
	out := make([]string, len(list))
	for i, e := range list {
		out[i] = e.Track.Title
	}
	return out
}

type memTx struct {
	s *memStore
}

func (t *memTx) LockPlaylist(ctx context.Context, playlistID string) (*Playlist, error) {
	return t.s.getPlaylist(playlistID)
}

func (t *memTx) BumpVersion(ctx context.Context, playlistID string) (int64, error) {
	p, ok := t.s.playlists[playlistID]
	if !ok {
		return 0, ErrPlaylistNotFound
	}
	p.Version++
	return p.Version, nil
}

func (t *memTx) ListOrdered(ctx context.Context, playlistID string) ([]Entry, error) {
	return t.s.listOrdered(playlistID), nil
}

func (t *memTx) Append(ctx context.Context, playlistID, trackID string) (*Entry, error) {
	next := 0
	for _, e := range t.s.entries[playlistID] {
		if e.trackID == trackID {
			return nil, ErrDuplicateTrack
		}
		if e.position >= next {
			next = e.position + 1
		}
	}
	e := &memEntry{id: uuid.NewString(), trackID: trackID, position: next}
	t.s.entries[playlistID] = append(t.s.entries[playlistID], e)
	return &Entry{ID: e.id, PlaylistID: playlistID, Position: next, Track: t.s.tracks[trackID]}, nil
}

func (t *memTx) setPosition(playlistID, entryID string, position int) error {
	t.s.writes++
	var target *memEntry
	for _, e := range t.s.entries[playlistID] {
		if e.id == entryID {
			target = e
			continue
		}
		if e.position == position {
			return fmt.Errorf("duplicate key value violates unique constraint \"playlist_entries_position_key\" (position %d)", position)
		}
	}
	if target == nil {
		return fmt.Errorf("entry %s not in playlist", entryID)
	}
	target.position = position
	return nil
}

func (t *memTx) ApplyPositions(ctx context.Context, playlistID string, placements []sequence.Placement[string]) error {
	if t.s.failApply != nil {
		return t.s.failApply
	}
	offsets := []int{tempPositionOffset, 0}
	if t.s.singlePhase {
		offsets = []int{0}
	}
	for _, offset := range offsets {
		for _, p := range placements {
			if err := t.setPosition(playlistID, p.Item, p.Position+offset); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *memTx) Delete(ctx context.Context, playlistID, entryID string) error {
	list := t.s.entries[playlistID]
	for i, e := range list {
		if e.id == entryID {
			t.s.entries[playlistID] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return ErrEntryNotFound
}

func (t *memTx) HasVoted(ctx context.Context, playlistID, userID string) (bool, error) {
	return t.s.votes[playlistID][userID], nil
}

func (t *memTx) RecordVote(ctx context.Context, playlistID, userID string) error {
	if t.s.votes[playlistID] == nil {
		t.s.votes[playlistID] = map[string]bool{}
	}
	if t.s.votes[playlistID][userID] {
		return ErrAlreadyVoted
	}
	t.s.votes[playlistID][userID] = true
	return nil
}

func (t *memTx) AddPoint(ctx context.Context, playlistID, entryID string) (int, error) {
	for _, e := range t.s.entries[playlistID] {
		if e.id == entryID {
			e.points++
			return e.points, nil
		}
	}
	return 0, ErrEntryNotFound
}

// recordingBroadcaster keeps every published snapshot.
type recordingBroadcaster struct {
	mu       sync.Mutex
	messages []Message
	err      error
}

func (b *recordingBroadcaster) Publish(ctx context.Context, playlistID string, version int64, entries []Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.messages = append(b.messages, NewMessage(playlistID, version, entries))
	return nil
}

func (b *recordingBroadcaster) all() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Message(nil), b.messages...)
}

type MockLookup struct {
	mock.Mock
}

func (m *MockLookup) GetTrack(ctx context.Context, id int64) (*deezer.Track, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*deezer.Track), args.Error(1)
}

func (m *MockLookup) SearchTracks(ctx context.Context, query string, limit int) ([]deezer.Track, error) {
	args := m.Called(ctx, query, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]deezer.Track), args.Error(1)
}
