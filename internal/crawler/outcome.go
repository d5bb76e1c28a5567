package crawler

import "fmt"

// Classify maps a backend return value onto the three-way task outcome.
// An error always wins; otherwise the page's own success flag decides.
func Classify(page Page, err error) (Outcome, string) {
	switch {
	case err != nil:
		return OutcomeHardFailure, err.Error()
	case page.Success:
		return OutcomeSuccess, ""
	case page.FailureReason != "":
		return OutcomeSoftFailure, page.FailureReason
	case page.StatusCode != 0:
		return OutcomeSoftFailure, fmt.Sprintf("unsuccessful response (status %d)", page.StatusCode)
	default:
		return OutcomeSoftFailure, "unsuccessful response"
	}
}

// JudgePage decides whether a rendered response counts as a successful crawl.
func JudgePage(statusCode int, body string) (bool, string) {
	switch {
	case statusCode >= 400:
		return false, fmt.Sprintf("http status %d", statusCode)
	case statusCode != 0 && statusCode < 200:
		return false, fmt.Sprintf("unexpected status %d", statusCode)
	case isBlank(body):
		return false, "empty content"
	default:
		return true, ""
	}
}

func isBlank(s string) bool {
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r':
		default:
			return false
		}
	}
	return true
}
