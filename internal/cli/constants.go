package cli

// Default values for CLI output.
const (
	// MaxSummaryLength is the maximum length of a package summary in search results.
	MaxSummaryLength = 50
	// TabWidth is the width of tabs in formatted output.
	TabWidth = 2
)
