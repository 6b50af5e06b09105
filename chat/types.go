package chat

// Result is the consolidated outcome of one chat round trip. DocumentURL is
// nil when the document store is disabled or the document pipeline degraded.
type Result struct {
	Answer      string
	DocumentURL *string
	Sources     []string
}
