package contest

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNoDocuments is returned by a Source when a contest exposes nothing to scan.
var ErrNoDocuments = errors.New("no candidate documents")

// FetchError covers network failures, timeouts and non-2xx responses.
// StatusCode is zero when no response was received.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d (%s): %v", e.URL, e.StatusCode, http.StatusText(e.StatusCode), e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ExtractionError reports an unreadable document.
type ExtractionError struct {
	Source string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract text from %s: %v", e.Source, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// StateLoadError reports missing or corrupt persisted state.
type StateLoadError struct {
	Object string
	Err    error
}

func (e *StateLoadError) Error() string {
	return fmt.Sprintf("load state %s: %v", e.Object, e.Err)
}

func (e *StateLoadError) Unwrap() error { return e.Err }

// StatePersistError reports a failed write of the state snapshot.
type StatePersistError struct {
	Object string
	Err    error
}

func (e *StatePersistError) Error() string {
	return fmt.Sprintf("persist state %s: %v", e.Object, e.Err)
}

func (e *StatePersistError) Unwrap() error { return e.Err }
