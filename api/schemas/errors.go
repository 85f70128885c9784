package schemas

// BrowserError is the base error for failures surfaced by the browser-driving
// layer: page crashes, navigation timeouts, snapshot assembly going wrong.
// The state model never swallows one; it propagates to whoever asked for the
// snapshot or navigation.
type BrowserError struct {
	Message string
}

// NewBrowserError creates a base browser error.
func NewBrowserError(message string) *BrowserError {
	return &BrowserError{Message: message}
}

// Error implements the error interface.
func (e *BrowserError) Error() string {
	return e.Message
}

// URLNotAllowedError reports a navigation target rejected by URL policy. It
// wraps BrowserError so callers can match either the specific rejection or
// the broader browser failure class.
type URLNotAllowedError struct {
	BrowserError
	URL string
}

// NewURLNotAllowedError creates a policy rejection for the given URL.
func NewURLNotAllowedError(url string) *URLNotAllowedError {
	return &URLNotAllowedError{
		BrowserError: BrowserError{Message: "URL not allowed: " + url},
		URL:          url,
	}
}

// Unwrap exposes the embedded BrowserError to errors.Is and errors.As chains.
func (e *URLNotAllowedError) Unwrap() error {
	return &e.BrowserError
}
