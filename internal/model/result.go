package model

// VerificationResult is the outcome of one code verification attempt.
//
// Every attempt produces exactly one result, whether it succeeded, was
// rejected by Bandcamp, or failed in transport. Callers distinguish outcomes
// through Success and Error only.
//
// Example:
//
//	res := engine.VerifyCode(ctx, "ABCD-1234", 1, 10)
//	if !res.Success {
//	    fmt.Printf("%s rejected: %s\n", res.Code, res.Error)
//	}
type VerificationResult struct {
	// Code is the download code as submitted.
	Code string `json:"code"`

	// HTTPStatus is the status of the verify response, or 0 when no response arrived.
	HTTPStatus int `json:"http_status"`

	// Success is true for a 2xx response whose body carries no errors list.
	Success bool `json:"success"`

	// ElapsedMS is the wall-clock time from before the delay to completion.
	ElapsedMS float64 `json:"elapsed_ms"`

	// DelaySec is the random delay applied before the request.
	DelaySec int `json:"delay_sec"`

	// Body is the decoded JSON response, the raw text if it was not JSON,
	// or nil when there was no response.
	Body any `json:"body"`

	// Error describes why Success is false. Empty on success.
	Error string `json:"error,omitempty"`

	// DOMValid is set by the browser transport when the page showed either the
	// check mark or an inline error. It never overrides Success.
	DOMValid *bool `json:"dom_valid,omitempty"`

	// UIError is the inline error text shown by the page, if any.
	UIError string `json:"ui_error,omitempty"`
}

// Summary counts successful and failed results.
func Summary(results []VerificationResult) (success, failed int) {
	for _, r := range results {
		if r.Success {
			success++
		} else {
			failed++
		}
	}
	return success, failed
}
