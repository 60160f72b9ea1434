package errors

import "fmt"

var (
	ErrWorkerPanic        = fmt.Errorf("worker panic")
	ErrSessionClosed      = fmt.Errorf("session closed")
	ErrUnknownConnection  = fmt.Errorf("unknown connection")
	ErrInvalidSubjectID   = fmt.Errorf("invalid subject id")
	ErrHorizonUpdateRetry = fmt.Errorf("read horizon update exhausted retries")
)
