package backend

import "strings"

// Mode is how the backend is deployed. It decides which interactive login
// flow is offered.
type Mode string

const (
	// ModeLocal backends accept username/password or owner-only consumer tokens.
	ModeLocal Mode = "local"
	// ModeHosted backends only accept delegated (OAuth) authorization.
	ModeHosted Mode = "hosted"
)

// ParseMode maps the backend's answer to a Mode. Anything other than
// "local" is treated as hosted; older backends answer "public".
func ParseMode(s string) Mode {
	if strings.EqualFold(strings.TrimSpace(s), string(ModeLocal)) {
		return ModeLocal
	}
	return ModeHosted
}

func (m Mode) String() string {
	return string(m)
}
