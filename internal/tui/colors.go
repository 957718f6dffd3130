package tui

// Color constants for the dtr theme
const (
	ColorBorder = "#2F4F4F" // slate

	ColorPrimaryText   = "#E6F2EE"
	ColorSecondaryText = "#A9BDB6"
	ColorDisabledText  = "#66736F"
	ColorHelpText      = "240"

	ColorAccentMain   = "#0F9D8A" // teal: logo, active borders, progress fill
	ColorAccentBright = "#5EEAD4" // clock digits, highlights

	ColorError   = "#EF4444"
	ColorSuccess = "#22C55E" // approved
	ColorWarning = "#F59E0B" // paused, pending
)

// approvalColor maps an approval state to its badge color
func approvalColor(status string) string {
	switch status {
	case "approved":
		return ColorSuccess
	case "rejected":
		return ColorError
	default:
		return ColorWarning
	}
}
