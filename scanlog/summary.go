package scanlog

import "fmt"

// Summary is the section header data for one batch.
type Summary struct {
	MessageCount int
	Label        string
}

// Summarize labels a batch by its message count.
func Summarize(b Batch) Summary {
	return SummarizeCount(len(b.Messages))
}

// SummarizeCount returns "One Message" for 1 and "<n> Messages" otherwise.
func SummarizeCount(n int) Summary {
	label := fmt.Sprintf("%d Messages", n)
	if n == 1 {
		label = "One Message"
	}
	return Summary{MessageCount: n, Label: label}
}
