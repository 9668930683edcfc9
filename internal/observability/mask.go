package observability

import "regexp"

var (
	rePassword = regexp.MustCompile(`(?i)(password=)([^\s;&]+)`)
	reBearer   = regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9._-]+)`)
	reAPIKey   = regexp.MustCompile(`(?i)(apikey=|api_key=|key=)([^\s;&]+)`)
	reURLCreds = regexp.MustCompile(`(://)([^:/@\s]+):([^@\s]*)(@)`)
	reMySQLDSN = regexp.MustCompile(`(^|\s)([^:@/\s]+):([^@\s]*)@(tcp|unix)\(`)
)

// Mask hides credentials in DSNs, query strings and auth headers before they
// reach a log line or an error shown to the user.
func Mask(s string) string {
	out := s
	out = rePassword.ReplaceAllString(out, "$1***")
	out = reBearer.ReplaceAllString(out, "$1***")
	out = reAPIKey.ReplaceAllString(out, "$1***")
	out = reURLCreds.ReplaceAllString(out, "$1*:*$4")
	out = reMySQLDSN.ReplaceAllString(out, "$1*:*@$4(")
	return out
}
