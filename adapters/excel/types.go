package excel

// RawData is a header row plus string cells as read from a CSV or sheet
type RawData struct {
	Headers []string   // Column headers
	Rows    [][]string // Data rows, possibly shorter than Headers
}
