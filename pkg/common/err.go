package common

import (
	"errors"
)

// Err is the error code carried in every reply. It implements error so that
// codes can be wrapped with %w and matched with errors.Is.
type Err string

const (
	OK                     Err = "OK"
	ErrUnknownFile         Err = "ErrUnknownFile"
	ErrUnknownReplica      Err = "ErrUnknownReplica"
	ErrAlreadyExists       Err = "ErrAlreadyExists"
	ErrStaleEdition        Err = "ErrStaleEdition"
	ErrPermissionDenied    Err = "ErrPermissionDenied"
	ErrPartialBatchFailure Err = "ErrPartialBatchFailure"
	ErrNoData              Err = "ErrNoData"
	ErrBadArgs             Err = "ErrBadArgs"
	ErrFailed              Err = "ErrFailed"
	ErrNodeClosed          Err = "ErrNodeClosed"
)

func (e Err) Error() string {
	return string(e)
}

// ToErr extracts the code from err, falling back to ErrFailed.
func ToErr(err error) Err {
	if err == nil {
		return OK
	}
	var e Err
	if errors.As(err, &e) {
		return e
	}
	return ErrFailed
}

// CodeError is an error received in a reply. It matches its code with
// errors.Is and prints the remote cause.
type CodeError struct {
	Code  Err
	Cause string
}

func (e *CodeError) Error() string {
	if e.Cause == "" {
		return string(e.Code)
	}
	return e.Cause
}

func (e *CodeError) Unwrap() error {
	return e.Code
}

// ReplyErr rebuilds the error of a reply, nil for OK.
func ReplyErr(code Err, cause string) error {
	if code == OK || code == "" {
		return nil
	}
	return &CodeError{Code: code, Cause: cause}
}
