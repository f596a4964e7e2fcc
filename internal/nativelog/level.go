package nativelog

import "strconv"

// Severity values used by scripts, following the React Native log levels.
const (
	SeverityTrace = 0
	SeverityInfo  = 1
	SeverityWarn  = 2
	SeverityError = 3
	SeverityFatal = 4
)

// SeverityName returns the label used for severity in logs and metrics.
// Values outside the known range are reported by number.
func SeverityName(severity int) string {
	switch severity {
	case SeverityTrace:
		return "trace"
	case SeverityInfo:
		return "info"
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	}
	return strconv.Itoa(severity)
}
