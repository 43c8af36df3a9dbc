package playlist

import (
	"context"
	"math"
	"time"
)

// Policy decides whether an actor may view, edit or vote on a playlist.
type Policy interface {
	CanView(ctx context.Context, p *Playlist, userID string) error
	CanEdit(ctx context.Context, p *Playlist, userID string) error
	CanVote(ctx context.Context, p *Playlist, actor Actor, now time.Time) error
}

type InviteChecker interface {
	IsInvited(ctx context.Context, playlistID, userID string) (bool, error)
}

// LicensePolicy enforces visibility plus the playlist's license type. Owners are never
// restricted.
type LicensePolicy struct {
	invites InviteChecker
}

func NewLicensePolicy(invites InviteChecker) *LicensePolicy {
	return &LicensePolicy{invites: invites}
}

func (lp *LicensePolicy) CanView(ctx context.Context, p *Playlist, userID string) error {
	_, err := lp.view(ctx, p, userID)
	return err
}

func (lp *LicensePolicy) CanEdit(ctx context.Context, p *Playlist, userID string) error {
	invited, err := lp.view(ctx, p, userID)
	if err != nil {
		return err
	}
	if userID == p.OwnerID {
		return nil
	}
	if p.License.Type == LicenseInviteOnly && !invited {
		return ErrForbidden.withMessage("license requires invitation to edit")
	}
	return nil
}

func (lp *LicensePolicy) CanVote(ctx context.Context, p *Playlist, actor Actor, now time.Time) error {
	invited, err := lp.view(ctx, p, actor.UserID)
	if err != nil {
		return err
	}
	if actor.UserID == p.OwnerID {
		return nil
	}

	switch p.License.Type {
	case "", LicenseOpen:
		return nil

	case LicenseInviteOnly:
		if !invited {
			return ErrForbidden.withMessage("license requires invitation to vote")
		}
		return nil

	case LicenseLocationTime:
		l := p.License
		if l.VoteStart != nil && now.Before(*l.VoteStart) {
			return ErrVotingClosed.withMessage("voting has not started yet")
		}
		if l.VoteEnd != nil && now.After(*l.VoteEnd) {
			return ErrVotingClosed.withMessage("voting has ended")
		}
		if l.Latitude == nil || l.Longitude == nil || l.RadiusMeters == nil {
			return nil
		}
		if actor.Lat == nil || actor.Lng == nil {
			return ErrVotingClosed.withMessage("location (lat, lng) is required to vote")
		}
		if !withinRadius(*l.Latitude, *l.Longitude, *l.RadiusMeters, *actor.Lat, *actor.Lng) {
			return ErrVotingClosed.withMessage("you are outside of the allowed voting area")
		}
		return nil

	default:
		return ErrForbidden.withMessage("unsupported license type")
	}
}

// view reports whether userID is invited, failing when the playlist is private to them.
func (lp *LicensePolicy) view(ctx context.Context, p *Playlist, userID string) (bool, error) {
	if userID == p.OwnerID {
		return false, nil
	}
	invited, err := lp.invites.IsInvited(ctx, p.ID, userID)
	if err != nil {
		return false, err
	}
	if !p.IsPublic && !invited {
		return false, ErrForbidden
	}
	return invited, nil
}

func withinRadius(centerLat, centerLng float64, radiusM int, userLat, userLng float64) bool {
	const earthRadiusM = 6371000.0
	rad := func(d float64) float64 { return d * math.Pi / 180 }

	dLat := rad(userLat - centerLat)
	dLng := rad(userLng - centerLng)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(centerLat))*math.Cos(rad(userLat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM*c <= float64(radiusM)
}
