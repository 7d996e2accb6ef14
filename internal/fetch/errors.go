package fetch

import "fmt"

// TransferError reports a network or HTTP failure after the retry budget is
// exhausted, or a non-retryable HTTP status.
type TransferError struct {
	URL      string
	Status   int // last HTTP status, 0 for transport-level failures
	Attempts int
	Err      error
}

func (e *TransferError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transfer %s: status %d after %d attempt(s): %v", e.URL, e.Status, e.Attempts, e.Err)
	}
	return fmt.Sprintf("transfer %s: %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// IntegrityError reports a digest mismatch between the downloaded bytes and
// the expected hash. It is fatal for the run: the temporary file is discarded
// and never promoted to the destination.
type IntegrityError struct {
	URL  string
	Want string
	Got  string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed for %s: got sha256 %s, want %s", e.URL, e.Got, e.Want)
}

// httpStatusError carries a non-2xx terminal status through the retry loop so
// it can be classified as retryable or not.
type httpStatusError struct {
	status int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.status)
}

// retryable reports whether the status is worth another attempt: transient
// server errors and 429 rate limits are; other 4xx are not.
func (e *httpStatusError) retryable() bool {
	return e.status >= 500 || e.status == 429
}
