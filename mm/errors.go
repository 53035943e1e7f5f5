package mm

import "github.com/pkg/errors"

// Failure kinds of Mmap and Munmap. Returned errors wrap one of these;
// classify with errors.Cause.
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrAllocationRefused = errors.New("allocation refused")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrIO                = errors.New("backing file i/o failed")
	ErrAccessDenied      = errors.New("access denied")

	// ErrBadDescriptor is the invalid argument of a descriptor that is not
	// open. Its cause is ErrInvalidArgument; match it with errors.Is.
	ErrBadDescriptor = errors.Wrap(ErrInvalidArgument, "bad file descriptor")
)
