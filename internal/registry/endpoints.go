package registry

const (
	// Quote service endpoints. Both are overridable through settings for
	// testing against local stubs.
	LiFiBaseURL = "https://li.quest/v1"
	DLNBaseURL  = "https://dln.debridge.finance/v1.0"
)
