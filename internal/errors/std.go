package errors

import stderrors "errors"

// Is and As forward to the standard library so callers importing this
// package under its own name do not need a second import.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// AsAppError extracts the AppError from err, or nil.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return nil
}
