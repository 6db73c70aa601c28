package auth

import (
	"fmt"
	"io"
	"strings"
)

// AppPasswordsURL is where Bluesky users create app passwords
const AppPasswordsURL = "https://bsky.app/settings/app-passwords"

// ShowAppPasswordGuide writes step-by-step instructions for creating an app password
func ShowAppPasswordGuide(w io.Writer) {
	rule := strings.Repeat("=", 72)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "BLUESKY APP PASSWORD")
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Search requires a logged-in session. Use an app password, not your")
	fmt.Fprintln(w, "account password; it can be revoked at any time without affecting")
	fmt.Fprintln(w, "your login.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  1. Sign in at https://bsky.app")
	fmt.Fprintf(w, "  2. Open %s\n", AppPasswordsURL)
	fmt.Fprintln(w, "  3. Choose 'Add App Password' and give it a name, e.g. postharvest")
	fmt.Fprintln(w, "  4. Copy the generated value (xxxx-xxxx-xxxx-xxxx); it is shown once")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Your handle is the name shown on your profile, e.g. alice.bsky.social.")
	fmt.Fprintf(w, "In CI, set %s and %s instead of saving an account.\n", EnvHandle, EnvAppPassword)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
}
