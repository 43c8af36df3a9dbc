package playlist

import (
	"context"
)

// castVote awards one point to entries[index] on behalf of userID. The caller must hold
// the playlist lock; entries is the ordered list read under that lock and is updated in
// place on success.
func castVote(ctx context.Context, tx Tx, playlistID, userID string, entries []Entry, index int) error {
	if index < 0 || index >= len(entries) {
		return ErrInvalidIndex
	}

	voted, err := tx.HasVoted(ctx, playlistID, userID)
	if err != nil {
		return err
	}
	if voted {
		return ErrAlreadyVoted
	}

	points, err := tx.AddPoint(ctx, playlistID, entries[index].ID)
	if err != nil {
		return err
	}
	if err := tx.RecordVote(ctx, playlistID, userID); err != nil {
		return err
	}

	entries[index].Points = points
	return nil
}
