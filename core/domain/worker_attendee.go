package domain

import (
	"bytes"

	"github.com/goccy/go-json"
)

// TargetAddresses holds one or more target-system addresses. On the wire it
// is either a single string or an array of strings.
type TargetAddresses []string

func (t *TargetAddresses) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var single string
		if err := json.Unmarshal(data, &single); err != nil {
			return err
		}
		*t = TargetAddresses{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*t = TargetAddresses(many)
	return nil
}

// MarshalJSON writes a single address as a plain string.
func (t TargetAddresses) MarshalJSON() ([]byte, error) {
	if len(t) == 1 {
		return json.Marshal(t[0])
	}
	if t == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(t))
}

// AttendeeMapping maps one source-system address to target addresses.
type AttendeeMapping struct {
	Outlook string          `json:"outlook"`
	Google  TargetAddresses `json:"google"`
}

// MergePolicy decides which entry survives when two mappings share an
// outlook key.
type MergePolicy string

const (
	MergeFirstSeen MergePolicy = "first_seen"
	MergeLastWrite MergePolicy = "last_write"
	MergeReject    MergePolicy = "reject"
)

func (p MergePolicy) Valid() bool {
	switch p {
	case MergeFirstSeen, MergeLastWrite, MergeReject:
		return true
	}
	return false
}
