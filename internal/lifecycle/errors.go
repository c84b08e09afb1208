package lifecycle

import "errors"

// ErrJoinTimeout is reported when the capture goroutine outlives JoinTimeout
var ErrJoinTimeout = errors.New("timed out waiting for capture to exit")
