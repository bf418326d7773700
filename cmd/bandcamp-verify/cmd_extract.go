package main

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/handiism/bandcamp-verificator/internal/extract"
	"github.com/handiism/bandcamp-verificator/internal/model"
)

var extractFlags struct {
	browser string
	login   bool
	env     bool
}

// extractCmd reads credentials from a local browser
var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract client_id, session and crumb from a logged-in browser",
	Long: `Reads the Bandcamp cookies from a local browser profile and fetches
the crumb with them.

With --login a visible Chrome window opens on the login page and the
cookies are read once you have signed in.

Example:
  eval "$(bandcamp-verify extract --browser firefox --env)"`,
	RunE: runExtract,
}

func init() {
	f := extractCmd.Flags()
	f.StringVar(&extractFlags.browser, "browser", "", "Browser to read: "+strings.Join(extract.SupportedBrowsers, ", ")+" (default: any)")
	f.BoolVar(&extractFlags.login, "login", false, "Open a browser window and wait for login instead of reading the cookie jar")
	f.BoolVar(&extractFlags.env, "env", false, "Print shell export lines")
}

func runExtract(cmd *cobra.Command, args []string) error {
	hint := strings.ToLower(strings.TrimSpace(extractFlags.browser))
	if hint != "" && !slices.Contains(extract.SupportedBrowsers, hint) {
		return fmt.Errorf("unsupported browser %q (supported: %s)", hint, strings.Join(extract.SupportedBrowsers, ", "))
	}

	e := extract.FromSettings(settings, extractFlags.login, logger)
	res := e.AutoExtract(cmd.Context(), hint)
	if !res.Success {
		return fmt.Errorf("extraction failed: %w", res.Err())
	}

	out := cmd.OutOrStdout()
	c := res.Credentials
	if extractFlags.env {
		writeEnv(out, c)
	} else {
		fmt.Fprintf(out, "client_id: %s\n", model.Redacted(c.ClientID, 20))
		fmt.Fprintf(out, "session:   %s\n", model.Redacted(c.Session, 20))
		if c.Identity != "" {
			fmt.Fprintf(out, "identity:  %s\n", model.Redacted(c.Identity, 20))
		}
		fmt.Fprintf(out, "crumb:     %s\n", model.Redacted(c.Crumb, 20))
	}

	if len(res.Failures) > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", res.Message())
	}
	return nil
}

// writeEnv prints c as POSIX shell export lines. Identity and crumb are
// skipped when empty.
func writeEnv(w io.Writer, c model.Credentials) {
	for _, v := range []struct {
		name, value string
		optional    bool
	}{
		{"BANDCAMP_CLIENT_ID", c.ClientID, false},
		{"BANDCAMP_SESSION", c.Session, false},
		{"BANDCAMP_IDENTITY", c.Identity, true},
		{"BANDCAMP_CRUMB", c.Crumb, true},
	} {
		if v.optional && v.value == "" {
			continue
		}
		fmt.Fprintf(w, "export %s=%s\n", v.name, shellQuote(v.value))
	}
}

// shellQuote wraps s in single quotes so the shell expands nothing in it.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
