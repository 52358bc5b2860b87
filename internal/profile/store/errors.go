package store

// Error wraps a driver error with the operation that failed and the driver's
// error code (SQLSTATE, MySQL error number or SQLite extended result code).
type Error struct {
	Op   string
	Code string
	Err  error
}

func (e *Error) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CauseCode exposes the driver error code for debug error responses.
func (e *Error) CauseCode() string {
	return e.Code
}

func (d *Dialect) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Code: d.ErrorCode(err), Err: err}
}
