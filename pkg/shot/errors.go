package shot

import "errors"

// Cycle-scoped failures. Each aborts the current shot cycle only; none are
// process-fatal. The coordination layer maps them onto result kinds.
var (
	ErrNoBallAtAddress       = errors.New("no ball detected at address")
	ErrInsufficientExposures = errors.New("insufficient strobe exposures")
	ErrPeerTimeout           = errors.New("timed out waiting for peer capture")
	ErrMalformedPayload      = errors.New("malformed coordination payload")
	ErrImplausibleResult     = errors.New("result outside plausible bounds")
	ErrCaptureDevice         = errors.New("capture device failure")
	ErrDetectionBackend      = errors.New("detection backend failure")
)

// KindForError maps a cycle failure to its result classification.
// Unknown errors classify as a detection failure, the broadest
// analysis-side bucket.
func KindForError(err error) Kind {
	switch {
	case errors.Is(err, ErrNoBallAtAddress):
		return KindNoBallAtAddress
	case errors.Is(err, ErrInsufficientExposures):
		return KindInsufficientExposures
	case errors.Is(err, ErrPeerTimeout):
		return KindPeerTimeout
	case errors.Is(err, ErrMalformedPayload):
		return KindMalformedPayload
	case errors.Is(err, ErrImplausibleResult):
		return KindImplausibleResult
	case errors.Is(err, ErrCaptureDevice):
		return KindCaptureFailure
	default:
		return KindDetectionFailure
	}
}
