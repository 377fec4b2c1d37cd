package domain

// EventDateTime is a wall-clock time paired with the zone it is expressed in.
type EventDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type EmailAddress struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

type SourceAttendee struct {
	EmailAddress EmailAddress `json:"emailAddress"`
}

// SourceEvent is an Outlook calendar item as read from Microsoft Graph.
// ICalUID is stable across runs and identifies the meeting.
type SourceEvent struct {
	ICalUID     string           `json:"iCalUId"`
	Subject     string           `json:"subject"`
	Start       EventDateTime    `json:"start"`
	End         EventDateTime    `json:"end"`
	BodyPreview string           `json:"bodyPreview"`
	Attendees   []SourceAttendee `json:"attendees"`
	IsCancelled bool             `json:"isCancelled"`
}

type TargetAttendee struct {
	Email string `json:"email"`
}

type Reminder struct {
	Method  string `json:"method"`
	Minutes int    `json:"minutes"`
}

type Reminders struct {
	UseDefault bool       `json:"useDefault"`
	Overrides  []Reminder `json:"overrides"`
}

// TargetEvent is the Google Calendar event payload built for a source event.
type TargetEvent struct {
	Summary         string           `json:"summary"`
	Location        string           `json:"location"`
	Description     string           `json:"description"`
	Start           EventDateTime    `json:"start"`
	End             EventDateTime    `json:"end"`
	Recurrence      []string         `json:"recurrence"`
	Attendees       []TargetAttendee `json:"attendees"`
	Reminders       Reminders        `json:"reminders"`
	GuestsCanModify bool             `json:"guestsCanModify"`
}

// FreeBusyWindow is a normalized query window in the target zone.
type FreeBusyWindow struct {
	TimeMin  string
	TimeMax  string
	TimeZone string
}

// BusyPeriod is one booked interval of a calendar.
type BusyPeriod struct {
	Start string
	End   string
}

// FreeBusyResult maps a calendar id to its busy intervals. Calendars the
// provider could not answer for carry Failed=true.
type FreeBusyResult map[string]CalendarBusy

type CalendarBusy struct {
	Busy   []BusyPeriod
	Failed bool
}
