package tree

import (
	"time"
)

var nowFunc = time.Now

// Now returns the current time truncated to whole seconds in UTC, which is the precision times are stored with.
func Now() time.Time {
	return Truncate(nowFunc())
}

// Truncate converts t to UTC with whole second precision.
func Truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// TimeInfo holds the timestamps every node carries.
type TimeInfo struct {
	Created         time.Time
	Modified        time.Time
	Accessed        time.Time
	Expiry          time.Time
	LocationChanged time.Time
	Expires         bool
	UsageCount      uint64
}

// NewTimeInfo returns a TimeInfo with every timestamp set to Now.
func NewTimeInfo() TimeInfo {
	now := Now()
	return TimeInfo{
		Created:         now,
		Modified:        now,
		Accessed:        now,
		Expiry:          now,
		LocationChanged: now,
	}
}

// Touch marks the node as modified and accessed at Now.
func (ti *TimeInfo) Touch() {
	now := Now()
	ti.Modified = now
	ti.Accessed = now
}

// SetExpiry makes the node expire at t.
func (ti *TimeInfo) SetExpiry(t time.Time) {
	ti.Expiry = Truncate(t)
	ti.Expires = true
}

// ClearExpiry stops the node from expiring.
func (ti *TimeInfo) ClearExpiry() {
	ti.Expires = false
}

// Normalize truncates every timestamp to the stored precision.
// The Tree normalizes nodes as they are added or edited, so times set directly through Times are safe to encode.
func (ti *TimeInfo) Normalize() {
	ti.Created = Truncate(ti.Created)
	ti.Modified = Truncate(ti.Modified)
	ti.Accessed = Truncate(ti.Accessed)
	ti.Expiry = Truncate(ti.Expiry)
	ti.LocationChanged = Truncate(ti.LocationChanged)
}

// Expired reports whether the node expires and its expiry time has passed.
func (ti TimeInfo) Expired() bool {
	return ti.Expires && !ti.Expiry.After(Now())
}

func (ti TimeInfo) Equal(other TimeInfo) bool {
	return ti.Created.Equal(other.Created) &&
		ti.Modified.Equal(other.Modified) &&
		ti.Accessed.Equal(other.Accessed) &&
		ti.Expiry.Equal(other.Expiry) &&
		ti.LocationChanged.Equal(other.LocationChanged) &&
		ti.Expires == other.Expires &&
		ti.UsageCount == other.UsageCount
}
