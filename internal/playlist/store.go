package playlist

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"musicroom/internal/sequence"
)

// tempPositionOffset moves rows out of the live position range during the first phase of
// ApplyPositions. It must exceed any real playlist length.
const tempPositionOffset = 1_000_000

const (
	pgUniqueViolation = "23505"

	constraintEntryTrack = "playlist_entries_track_key"
	constraintVote       = "playlist_votes_pkey"
)

// Store is the persistence boundary of the playlist service.
type Store interface {
	// InTx runs fn inside one transaction. A non-nil error from fn rolls everything back.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	GetPlaylist(ctx context.Context, id string) (*Playlist, error)
	ListOrdered(ctx context.Context, playlistID string) ([]Entry, error)
	IsInvited(ctx context.Context, playlistID, userID string) (bool, error)

	ListPlaylists(ctx context.Context, userID string, event *bool) ([]Playlist, error)
	CreatePlaylist(ctx context.Context, p *Playlist) error
	UpdatePlaylist(ctx context.Context, p *Playlist) error
	DeletePlaylist(ctx context.Context, id string) error
	UpdateLicense(ctx context.Context, playlistID string, l License) error
	AddInvite(ctx context.Context, playlistID, userID string) error
	RemoveInvite(ctx context.Context, playlistID, userID string) error

	GetTrack(ctx context.Context, id string) (*Track, error)
	FindTrackByDeezerID(ctx context.Context, deezerID int64) (*Track, error)
	UpsertTrack(ctx context.Context, t *Track) error
}

// Tx is the set of operations that must share a transaction with each other.
type Tx interface {
	// LockPlaylist loads the playlist and holds a row lock on it until commit, serializing
	// all mutations of the same playlist.
	LockPlaylist(ctx context.Context, playlistID string) (*Playlist, error)
	// BumpVersion increments the playlist version and returns the new value.
	BumpVersion(ctx context.Context, playlistID string) (int64, error)
	ListOrdered(ctx context.Context, playlistID string) ([]Entry, error)
	Append(ctx context.Context, playlistID, trackID string) (*Entry, error)
	ApplyPositions(ctx context.Context, playlistID string, placements []sequence.Placement[string]) error
	Delete(ctx context.Context, playlistID, entryID string) error

	HasVoted(ctx context.Context, playlistID, userID string) (bool, error)
	RecordVote(ctx context.Context, playlistID, userID string) error
	AddPoint(ctx context.Context, playlistID, entryID string) (int, error)
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB is implemented by *pgxpool.Pool and by pgxmock pools.
type DB interface {
	querier
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPlaylist(ctx context.Context, id string) (*Playlist, error) {
	return getPlaylist(ctx, s.db, id, false)
}

func (s *PostgresStore) ListOrdered(ctx context.Context, playlistID string) ([]Entry, error) {
	return listOrdered(ctx, s.db, playlistID)
}

func (s *PostgresStore) IsInvited(ctx context.Context, playlistID, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	var invited bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM playlist_members
			WHERE playlist_id = $1 AND user_id = $2
		)
	`, playlistID, userID).Scan(&invited)
	if err != nil {
		return false, fmt.Errorf("check invite: %w", err)
	}
	return invited, nil
}

// ListPlaylists returns the newest playlists userID can see: public ones, their own and
// the ones they are invited to. A non-nil event keeps only events or only non-events.
func (s *PostgresStore) ListPlaylists(ctx context.Context, userID string, event *bool) ([]Playlist, error) {
	rows, err := s.db.Query(ctx, `
		SELECT ` + playlistColumns + `
		FROM playlists p
		WHERE (
			p.is_public
			OR ($1 <> '' AND p.owner_id = $1)
			OR ($1 <> '' AND EXISTS (
				SELECT 1 FROM playlist_members pm
				WHERE pm.playlist_id = p.id AND pm.user_id = $1
			))
		)
		AND ($2::boolean IS NULL OR p.is_event = $2)
		ORDER BY p.created_at DESC
		LIMIT 200
	`, userID, event)
	if err != nil {
		return nil, fmt.Errorf("list playlists: %w", err)
	}
	defer rows.Close()

	playlists := make([]Playlist, 0)
	for rows.Next() {
		p, err := scanPlaylist(rows)
		if err != nil {
			return nil, fmt.Errorf("scan playlist: %w", err)
		}
		playlists = append(playlists, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate playlists: %w", err)
	}
	return playlists, nil
}

func (s *PostgresStore) CreatePlaylist(ctx context.Context, p *Playlist) error {
	err := s.db.QueryRow(ctx, `
		INSERT INTO playlists (owner_id, name, description, is_public, is_event, license_type)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, p.OwnerID, p.Name, p.Description, p.IsPublic, p.IsEvent, p.License.Type).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert playlist: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdatePlaylist(ctx context.Context, p *Playlist) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE playlists
		SET name = $2,
		    description = $3,
		    is_public = $4,
		    is_event = $5
		WHERE id = $1
	`, p.ID, p.Name, p.Description, p.IsPublic, p.IsEvent)
	if err != nil {
		return fmt.Errorf("update playlist: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPlaylistNotFound
	}
	return nil
}

// DeletePlaylist removes the playlist. Entries, invites and votes go with it through the
// ON DELETE CASCADE foreign keys.
func (s *PostgresStore) DeletePlaylist(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM playlists WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete playlist: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPlaylistNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateLicense(ctx context.Context, playlistID string, l License) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE playlists
		SET license_type = $2,
		    vote_start = $3,
		    vote_end = $4,
		    latitude = $5,
		    longitude = $6,
		    radius_m = $7
		WHERE id = $1
	`, playlistID, l.Type, l.VoteStart, l.VoteEnd, l.Latitude, l.Longitude, l.RadiusMeters)
	if err != nil {
		return fmt.Errorf("update license: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPlaylistNotFound
	}
	return nil
}

func (s *PostgresStore) AddInvite(ctx context.Context, playlistID, userID string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO playlist_members (playlist_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (playlist_id, user_id) DO NOTHING
	`, playlistID, userID)
	if err != nil {
		return fmt.Errorf("insert invite: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveInvite(ctx context.Context, playlistID, userID string) error {
	_, err := s.db.Exec(ctx, `
		DELETE FROM playlist_members
		WHERE playlist_id = $1 AND user_id = $2
	`, playlistID, userID)
	if err != nil {
		return fmt.Errorf("delete invite: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTrack(ctx context.Context, id string) (*Track, error) {
	var t Track
	err := s.db.QueryRow(ctx, `
		SELECT id, deezer_track_id, title, artist, album, url
		FROM tracks
		WHERE id = $1
	`, id).Scan(&t.ID, &t.DeezerTrackID, &t.Title, &t.Artist, &t.Album, &t.URL)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTrackNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get track: %w", err)
	}
	return &t, nil
}

func (s *PostgresStore) FindTrackByDeezerID(ctx context.Context, deezerID int64) (*Track, error) {
	var t Track
	err := s.db.QueryRow(ctx, `
		SELECT id, deezer_track_id, title, artist, album, url
		FROM tracks
		WHERE deezer_track_id = $1
	`, deezerID).Scan(&t.ID, &t.DeezerTrackID, &t.Title, &t.Artist, &t.Album, &t.URL)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTrackNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find track: %w", err)
	}
	return &t, nil
}

// UpsertTrack creates the catalog row for t.DeezerTrackID or refreshes its metadata, and
// sets t.ID.
func (s *PostgresStore) UpsertTrack(ctx context.Context, t *Track) error {
	err := s.db.QueryRow(ctx, `
		INSERT INTO tracks (deezer_track_id, title, artist, album, url)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (deezer_track_id) DO UPDATE
		SET title = EXCLUDED.title,
		    artist = EXCLUDED.artist,
		    album = EXCLUDED.album,
		    url = EXCLUDED.url
		RETURNING id
	`, t.DeezerTrackID, t.Title, t.Artist, t.Album, t.URL).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("upsert track: %w", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockPlaylist(ctx context.Context, playlistID string) (*Playlist, error) {
	return getPlaylist(ctx, t.tx, playlistID, true)
}

func (t *pgTx) BumpVersion(ctx context.Context, playlistID string) (int64, error) {
	var version int64
	err := t.tx.QueryRow(ctx, `
		UPDATE playlists
		SET version = version + 1
		WHERE id = $1
		RETURNING version
	`, playlistID).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrPlaylistNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("bump version: %w", err)
	}
	return version, nil
}

func (t *pgTx) ListOrdered(ctx context.Context, playlistID string) ([]Entry, error) {
	return listOrdered(ctx, t.tx, playlistID)
}

func (t *pgTx) Append(ctx context.Context, playlistID, trackID string) (*Entry, error) {
	var exists bool
	if err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM playlist_entries
			WHERE playlist_id = $1 AND track_id = $2
		)
	`, playlistID, trackID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check duplicate entry: %w", err)
	}
	if exists {
		return nil, ErrDuplicateTrack
	}

	e := Entry{PlaylistID: playlistID, Track: Track{ID: trackID}}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO playlist_entries (playlist_id, track_id, position)
		VALUES (
			$1, $2,
			COALESCE(
				(SELECT MAX(position) + 1 FROM playlist_entries WHERE playlist_id = $1),
				0
			)
		)
		RETURNING id, position, points
	`, playlistID, trackID).Scan(&e.ID, &e.Position, &e.Points)
	if isUniqueViolation(err, constraintEntryTrack) {
		return nil, ErrDuplicateTrack
	}
	if err != nil {
		return nil, fmt.Errorf("insert entry: %w", err)
	}
	return &e, nil
}

const applyPositionsSQL = `
		UPDATE playlist_entries AS e
		SET position = v.position + $4
		FROM unnest($2::text[], $3::int[]) AS v(id, position)
		WHERE e.playlist_id = $1 AND e.id = v.id::uuid
	`

// ApplyPositions writes every placement in two steps: first into a range disjoint from
// all live positions, then to the final positions. A single pass could collide with the
// (playlist_id, position) unique index whenever two rows trade places.
func (t *pgTx) ApplyPositions(ctx context.Context, playlistID string, placements []sequence.Placement[string]) error {
	if len(placements) == 0 {
		return nil
	}

	ids := make([]string, len(placements))
	positions := make([]int, len(placements))
	for i, p := range placements {
		ids[i] = p.Item
		positions[i] = p.Position
	}

	for _, offset := range []int{tempPositionOffset, 0} {
		tag, err := t.tx.Exec(ctx, applyPositionsSQL, playlistID, ids, positions, offset)
		if err != nil {
			return fmt.Errorf("apply positions (offset %d): %w", offset, err)
		}
		if int(tag.RowsAffected()) != len(placements) {
			return fmt.Errorf("apply positions: updated %d of %d entries", tag.RowsAffected(), len(placements))
		}
	}
	return nil
}

func (t *pgTx) Delete(ctx context.Context, playlistID, entryID string) error {
	tag, err := t.tx.Exec(ctx, `
		DELETE FROM playlist_entries
		WHERE id = $1 AND playlist_id = $2
	`, entryID, playlistID)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (t *pgTx) HasVoted(ctx context.Context, playlistID, userID string) (bool, error) {
	var voted bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM playlist_votes
			WHERE playlist_id = $1 AND user_id = $2
		)
	`, playlistID, userID).Scan(&voted)
	if err != nil {
		return false, fmt.Errorf("check vote: %w", err)
	}
	return voted, nil
}

func (t *pgTx) RecordVote(ctx context.Context, playlistID, userID string) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO playlist_votes (playlist_id, user_id)
		VALUES ($1, $2)
	`, playlistID, userID)
	if isUniqueViolation(err, constraintVote) {
		return ErrAlreadyVoted
	}
	if err != nil {
		return fmt.Errorf("record vote: %w", err)
	}
	return nil
}

func (t *pgTx) AddPoint(ctx context.Context, playlistID, entryID string) (int, error) {
	var points int
	err := t.tx.QueryRow(ctx, `
		UPDATE playlist_entries
		SET points = points + 1
		WHERE id = $1 AND playlist_id = $2
		RETURNING points
	`, entryID, playlistID).Scan(&points)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrEntryNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("add point: %w", err)
	}
	return points, nil
}

const playlistColumns = `p.id, p.owner_id, p.name, p.description, p.is_public, p.is_event,
		       p.license_type, p.vote_start, p.vote_end, p.latitude, p.longitude, p.radius_m,
		       p.version, p.created_at`

func scanPlaylist(row pgx.Row) (*Playlist, error) {
	var p Playlist
	err := row.Scan(
		&p.ID, &p.OwnerID, &p.Name, &p.Description, &p.IsPublic, &p.IsEvent,
		&p.License.Type, &p.License.VoteStart, &p.License.VoteEnd, &p.License.Latitude,
		&p.License.Longitude, &p.License.RadiusMeters, &p.Version, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func getPlaylist(ctx context.Context, q querier, id string, forUpdate bool) (*Playlist, error) {
	sql := `
		SELECT ` + playlistColumns + `
		FROM playlists p
		WHERE p.id = $1
	`
	if forUpdate {
		sql += " FOR UPDATE"
	}

	p, err := scanPlaylist(q.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPlaylistNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get playlist: %w", err)
	}
	return p, nil
}

func listOrdered(ctx context.Context, q querier, playlistID string) ([]Entry, error) {
	rows, err := q.Query(ctx, `
		SELECT e.id, e.position, e.points,
		       t.id, t.deezer_track_id, t.title, t.artist, t.album, t.url
		FROM playlist_entries e
		JOIN tracks t ON t.id = e.track_id
		WHERE e.playlist_id = $1
		ORDER BY e.position ASC
	`, playlistID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		e := Entry{PlaylistID: playlistID}
		if err := rows.Scan(
			&e.ID, &e.Position, &e.Points,
			&e.Track.ID, &e.Track.DeezerTrackID, &e.Track.Title, &e.Track.Artist, &e.Track.Album, &e.Track.URL,
		); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == constraint
}
