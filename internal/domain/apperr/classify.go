package apperr

// Report is the user facing view of an error.
type Report struct {
	Kind       Kind   `json:"kind"`
	Title      string `json:"title"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion"`
	Retryable  bool   `json:"retryable"`
}

var reports = map[Kind]Report{
	KindAuth: {
		Title:      "Sign in required",
		Suggestion: "Your session has expired. Sign in again to continue.",
	},
	KindRateLimit: {
		Title:      "Too many requests",
		Suggestion: "Please wait a minute before analyzing again.",
		Retryable:  true,
	},
	KindTimeout: {
		Title:      "Analysis timed out",
		Suggestion: "The document may be too long. Try again or lower the character limit.",
		Retryable:  true,
	},
	KindNetwork: {
		Title:      "Connection problem",
		Suggestion: "Check your internet connection and try again.",
		Retryable:  true,
	},
	KindNoContent: {
		Title:      "No content found",
		Suggestion: "Open a Terms of Service or Privacy Policy page and try again.",
	},
	KindUsageLimit: {
		Title:      "Scan limit reached",
		Suggestion: "Upgrade your plan for more scans, or wait for your quota to reset.",
	},
	KindInvalid: {
		Title:      "Invalid request",
		Suggestion: "Check the input and try again.",
	},
	KindForbidden: {
		Title:      "Not available on your plan",
		Suggestion: "Upgrade your plan to use this feature.",
	},
	KindNotFound: {
		Title:      "Not found",
		Suggestion: "The requested item does not exist.",
	},
}

// Classify builds the Report for err.
func Classify(err error) Report {
	if err == nil {
		return Report{}
	}
	kind := KindOf(err)
	r, ok := reports[kind]
	if !ok {
		r = Report{
			Title:      "Something went wrong",
			Suggestion: "Please try again. If the problem persists, contact support.",
			Retryable:  true,
		}
		kind = KindUnknown
	}
	r.Kind = kind
	r.Message = err.Error()
	return r
}
