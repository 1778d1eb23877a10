package asr

import "errors"

// Classification sentinels wrapped into provider errors so callers can tell
// retryable outages from permanent rejections with errors.Is.
var (
	// ErrUnavailable marks network failures, timeouts, and backend 5xx
	// responses. The call may succeed later.
	ErrUnavailable = errors.New("asr backend unavailable")

	// ErrRejected marks backend 4xx responses (bad credentials, unsupported
	// audio). Retrying the same request will not help.
	ErrRejected = errors.New("asr backend rejected request")
)
