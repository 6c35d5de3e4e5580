// Package source holds what the provider clients share.
package source

import "errors"

// ErrEndOfStream marks a provider response that terminates pagination
// gracefully, such as an "offset too high" rejection.
var ErrEndOfStream = errors.New("end of stream")
