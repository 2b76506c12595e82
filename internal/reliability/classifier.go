package reliability

import "time"

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsRetryableRecognitionStatus classifies recognizer reply statuses that are
// worth another attempt. A "no_speech" or "speaker_unverified" reply is a
// definitive answer, not a transient fault.
func IsRetryableRecognitionStatus(status string) bool {
	switch status {
	case "timeout", "busy", "queue_overflow", "internal_error":
		return true
	default:
		return false
	}
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}
