package models

import "time"

// Relay is one relay as it appeared in a single network-status snapshot.
// Records are read-only once loaded from the store.
type Relay struct {
	ValidAfter  time.Time `json:"valid_after"`
	Fingerprint string    `json:"fingerprint" validate:"required,len=40,hexadecimal"`
	Nickname    string    `json:"nickname" validate:"required,max=19"`
	Address     string    `json:"address" validate:"required,ipv4"`
	Hostname    string    `json:"hostname,omitempty"`
	ORPort      int       `json:"orport" validate:"min=0,max=65535"`
	DirPort     *int      `json:"dirport,omitempty" validate:"omitempty,min=0,max=65535"`
	Country     string    `json:"country,omitempty" validate:"omitempty,len=2"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`

	BandwidthObserved int64     `json:"bandwidthobserved" validate:"min=0"`
	Uptime            int64     `json:"uptime" validate:"min=0"`
	Published         time.Time `json:"published"`
	Contact           string    `json:"contact,omitempty"`
	Platform          string    `json:"platform,omitempty"`

	// Descriptor is the raw server descriptor a snapshot may carry instead
	// of a contact field. The importer consumes it; it is never stored.
	Descriptor string `json:"descriptor,omitempty"`

	IsAuthority    bool `json:"isauthority"`
	IsBadDirectory bool `json:"isbaddirectory"`
	IsBadExit      bool `json:"isbadexit"`
	IsExit         bool `json:"isexit"`
	IsFast         bool `json:"isfast"`
	IsGuard        bool `json:"isguard"`
	IsHibernating  bool `json:"ishibernating"`
	IsNamed        bool `json:"isnamed"`
	IsStable       bool `json:"isstable"`
	IsRunning      bool `json:"isrunning"`
	IsValid        bool `json:"isvalid"`
	IsV2Dir        bool `json:"isv2dir"`
}

// HasGeo reports whether the relay carries a country code and coordinates.
func (r *Relay) HasGeo() bool {
	return r.Country != "" && (r.Latitude != 0 || r.Longitude != 0)
}

// Value returns the relay attribute stored under the given internal field
// name. Strings come back as string, counters as int64, flags as bool,
// published as time.Time and the directory port as int64 or nil when the
// relay has none.
func (r *Relay) Value(field string) (any, bool) {
	switch field {
	case "nickname":
		return r.Nickname, true
	case "fingerprint":
		return r.Fingerprint, true
	case "country":
		return r.Country, true
	case "published":
		return r.Published, true
	case "hostname":
		return r.Hostname, true
	case "address":
		return r.Address, true
	case "platform":
		return r.Platform, true
	case "contact":
		return r.Contact, true
	case "orport":
		return int64(r.ORPort), true
	case "dirport":
		if r.DirPort == nil {
			return nil, true
		}
		return int64(*r.DirPort), true
	case "bandwidthobserved":
		return r.BandwidthObserved, true
	case "uptime":
		return r.Uptime, true
	case "isauthority":
		return r.IsAuthority, true
	case "isbaddirectory":
		return r.IsBadDirectory, true
	case "isbadexit":
		return r.IsBadExit, true
	case "isexit":
		return r.IsExit, true
	case "isfast":
		return r.IsFast, true
	case "isguard":
		return r.IsGuard, true
	case "ishibernating":
		return r.IsHibernating, true
	case "isnamed":
		return r.IsNamed, true
	case "isstable":
		return r.IsStable, true
	case "isrunning":
		return r.IsRunning, true
	case "isvalid":
		return r.IsValid, true
	case "isv2dir":
		return r.IsV2Dir, true
	}
	return nil, false
}

// Snapshot is a complete network-status snapshot as exchanged by the
// importer.
type Snapshot struct {
	ValidAfter time.Time `json:"valid_after" validate:"required"`
	Relays     []Relay   `json:"relays" validate:"dive"`
}
