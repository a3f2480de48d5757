// Package identity resolves the name this instance announces on the LAN
package identity

import (
	"os"
	"os/user"
	"strings"
)

// Fallback is used when no other name source is available
const Fallback = "nodemailer"

// Resolve returns the configured username if set, otherwise the OS login
// name, otherwise the hostname.
func Resolve(configured string) string {
	if name := Clean(configured); name != "" {
		return name
	}
	if name := Login(); name != "" {
		return name
	}
	if host, err := os.Hostname(); err == nil {
		if name := Clean(host); name != "" {
			return name
		}
	}
	return Fallback
}

// Login returns the current OS login name, or empty if unknown
func Login() string {
	if u, err := user.Current(); err == nil {
		// Windows reports DOMAIN\user
		name := u.Username
		if i := strings.LastIndex(name, `\`); i >= 0 {
			name = name[i+1:]
		}
		if name = Clean(name); name != "" {
			return name
		}
	}
	for _, env := range []string{"USER", "USERNAME", "LOGNAME"} {
		if name := Clean(os.Getenv(env)); name != "" {
			return name
		}
	}
	return ""
}

// Clean trims whitespace and drops control characters from a name
func Clean(name string) string {
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	return strings.TrimSpace(name)
}
