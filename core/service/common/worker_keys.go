package common

import "strings"

// UserPlaceholder is substituted with the user name in per-user key templates.
const UserPlaceholder = "%USER%"

// ResolveKey replaces every placeholder in template with user.
func ResolveKey(template, user string) string {
	return strings.ReplaceAll(template, UserPlaceholder, user)
}

// Keys is the storage layout: one bucket, fixed sync documents and per-user
// key templates.
type Keys struct {
	Bucket          string
	UserHome        string
	UserInfo        string
	SourceToken     string
	TargetToken     string
	Attendees       string
	ProcessedEvents string
	CreatedEvents   string
}

func (k Keys) UserInfoKey(user string) string    { return ResolveKey(k.UserInfo, user) }
func (k Keys) AttendeesKey(user string) string   { return ResolveKey(k.Attendees, user) }
func (k Keys) SourceTokenKey(user string) string { return ResolveKey(k.SourceToken, user) }
func (k Keys) TargetTokenKey(user string) string { return ResolveKey(k.TargetToken, user) }

// UserNames turns child keys listed under prefix into bare user names,
// stripping the prefix and any trailing separator. Empty names are dropped.
func UserNames(childKeys []string, prefix string) []string {
	names := make([]string, 0, len(childKeys))
	for _, k := range childKeys {
		name := strings.TrimSuffix(strings.TrimPrefix(k, prefix), "/")
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}
