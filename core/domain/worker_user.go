package domain

// RoomRef identifies a bookable meeting room on the target calendar.
// ID is the resource calendar address, Title its display name.
type RoomRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// User is the per-user profile document, keyed by name.
type User struct {
	Name         string    `json:"name"`
	PasswordHash string    `json:"passwordHash,omitempty"`
	Rooms        []RoomRef `json:"rooms"`
	Filters      []string  `json:"filters"`
}

// Public returns a copy without credentials.
func (u *User) Public() *User {
	cp := *u
	cp.PasswordHash = ""
	if cp.Rooms == nil {
		cp.Rooms = []RoomRef{}
	}
	if cp.Filters == nil {
		cp.Filters = []string{}
	}
	return &cp
}

// ProviderStatus reports whether a user completed OAuth for a provider.
type ProviderStatus struct {
	Authorized bool   `json:"authorized"`
	LoginURL   string `json:"loginUrl,omitempty"`
}

// UserConfig is the user-facing configuration view.
type UserConfig struct {
	Info      *User             `json:"info"`
	Attendees []AttendeeMapping `json:"attendees"`
	Google    ProviderStatus    `json:"google"`
	Outlook   ProviderStatus    `json:"outlook"`
}
