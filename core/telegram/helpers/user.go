package helpers

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// DisplayName renders a human-readable name for a Telegram user, falling
// back to the username when no real name is set.
func DisplayName(u *tele.User) string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.Username
	}
	return name
}
