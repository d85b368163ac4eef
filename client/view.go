// Package client keeps a player's local picture of a room in sync with the
// store and drives the timer-based intents every client is expected to send.
package client

import (
	"sync"
	"time"

	"petitbacserver/models"
)

// View holds the newest room snapshot seen by one player. Snapshots may
// arrive out of order; older revisions are dropped.
type View struct {
	mu      sync.RWMutex
	me      string
	room    *models.Room
	deleted bool
}

func NewView(me string) *View {
	return &View{me: me}
}

// Apply stores room if it is newer than the current snapshot. A nil room marks
// the room as deleted. It reports whether the view changed.
func (v *View) Apply(room *models.Room) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.deleted {
		return false
	}
	if room == nil {
		v.deleted = true
		v.room = nil
		return true
	}
	if v.room != nil && room.Revision <= v.room.Revision {
		return false
	}
	v.room = room.Clone()
	return true
}

// Room returns a copy of the current snapshot, nil before the first one.
func (v *View) Room() *models.Room {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.room.Clone()
}

func (v *View) Revision() int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.room == nil {
		return 0
	}
	return v.room.Revision
}

// Me returns this player's entry, nil once they are no longer in the room.
func (v *View) Me() *models.Player {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.room == nil {
		return nil
	}
	p := v.room.FindPlayer(v.me)
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

func (v *View) IsHost() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.room != nil && v.room.Host == v.me
}

// TimeLeft returns the time remaining in the current round, zero when no
// round is running.
func (v *View) TimeLeft(now time.Time) time.Duration {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.room == nil || v.room.Status != models.StatusPlaying {
		return 0
	}
	left := v.room.RoundEndTime.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

func (v *View) Deleted() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.deleted
}
