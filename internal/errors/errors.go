// Package errors defines the typed errors produced by the upload pipeline.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind groups error codes into the families the orchestrator reasons about.
type Kind string

const (
	KindTransport     Kind = "transport"
	KindFetch         Kind = "fetch"
	KindPolicy        Kind = "policy"
	KindNaming        Kind = "naming"
	KindPersist       Kind = "persist"
	KindConfiguration Kind = "configuration"
	KindBatchEmpty    Kind = "batch_empty"
)

// Error represents a typed upload error with HTTP awareness.
type Error struct {
	Kind    Kind   `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target carries the same code, so errors.Is works against
// the predefined values even after Clone or Wrap.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// Fatal reports whether the error aborts a batch regardless of skip policy.
func (e *Error) Fatal() bool {
	return e != nil && (e.Kind == KindConfiguration || e.Kind == KindBatchEmpty)
}

// New creates a new Error instance.
func New(kind Kind, code string, status int, message string) *Error {
	return &Error{Kind: kind, Code: code, Status: status, Message: message}
}

// Wrap attaches a cause to a copy of base.
func Wrap(err error, base *Error, message string) *Error {
	clone := Clone(base, message)
	clone.Err = err
	return clone
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Clonef is Clone with a formatted message.
func Clonef(err *Error, format string, args ...any) *Error {
	return Clone(err, fmt.Sprintf(format, args...))
}

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal, "")
}

// Native upload error codes. Remote fetch failures reuse ErrCodeNoFile so the
// orchestrator treats both input shapes alike.
const (
	ErrCodeOK        = 0
	ErrCodeIniSize   = 1
	ErrCodeFormSize  = 2
	ErrCodePartial   = 3
	ErrCodeNoFile    = 4
	ErrCodeNoTmpDir  = 6
	ErrCodeCantWrite = 7
	ErrCodeExtension = 8
)

// Predefined errors for the pipeline.
var (
	ErrIniSize   = New(KindTransport, "UPLOAD_ERR_INI_SIZE", http.StatusRequestEntityTooLarge, "the uploaded file exceeds the server size limit")
	ErrFormSize  = New(KindTransport, "UPLOAD_ERR_FORM_SIZE", http.StatusRequestEntityTooLarge, "the uploaded file exceeds the form size limit")
	ErrPartial   = New(KindTransport, "UPLOAD_ERR_PARTIAL", http.StatusBadRequest, "the uploaded file was only partially uploaded")
	ErrNoFile    = New(KindTransport, "UPLOAD_ERR_NO_FILE", http.StatusBadRequest, "no file was uploaded")
	ErrNoTmpDir  = New(KindTransport, "UPLOAD_ERR_NO_TMP_DIR", http.StatusInternalServerError, "the temporary folder is missing")
	ErrCantWrite = New(KindTransport, "UPLOAD_ERR_CANT_WRITE", http.StatusInternalServerError, "the file could not be written to disk")
	ErrExtension = New(KindTransport, "UPLOAD_ERR_EXTENSION", http.StatusBadRequest, "the file upload was stopped by an extension")
	ErrTransport = New(KindTransport, "UPLOAD_ERR_UNKNOWN", http.StatusBadRequest, "the file upload failed")

	ErrFetch = New(KindFetch, "FETCH_FAILED", http.StatusBadGateway, "the remote file could not be fetched")

	ErrFileTooLarge         = New(KindPolicy, "FILE_TOO_LARGE", http.StatusRequestEntityTooLarge, "the file exceeds the maximum allowed size")
	ErrDisallowedType       = New(KindPolicy, "DISALLOWED_TYPE", http.StatusUnsupportedMediaType, "the filetype is not allowed")
	ErrResolution           = New(KindPolicy, "RESOLUTION", http.StatusUnprocessableEntity, "the resolution is out of bounds")
	ErrVideoDuration        = New(KindPolicy, "VIDEO_DURATION", http.StatusUnprocessableEntity, "the duration is out of bounds")
	ErrVideoBitrate         = New(KindPolicy, "VIDEO_BITRATE", http.StatusUnprocessableEntity, "the bitrate is out of bounds")
	ErrVideoCodec           = New(KindPolicy, "VIDEO_CODEC", http.StatusUnsupportedMediaType, "the video codec is not allowed")
	ErrAudioCodec           = New(KindPolicy, "AUDIO_CODEC", http.StatusUnsupportedMediaType, "the audio codec is not allowed")
	ErrMetadataUnavailable  = New(KindPolicy, "METADATA_UNAVAILABLE", http.StatusUnprocessableEntity, "media metadata could not be read")
	ErrFilenameCollision    = New(KindNaming, "FILENAME_COLLISION", http.StatusConflict, "no free file name left for the upload")
	ErrFileCopying          = New(KindPersist, "FILE_COPYING", http.StatusInternalServerError, "a problem was encountered while moving the uploaded file to the final destination")
	ErrUploadPath           = New(KindConfiguration, "UPLOAD_PATH", http.StatusInternalServerError, "the upload destination path does not appear to be valid")
	ErrDirectoryNotWritable = New(KindConfiguration, "DIRECTORY_NOT_WRITABLE", http.StatusInternalServerError, "the upload destination directory is not writable")
	ErrEmptyRegistry        = New(KindConfiguration, "NO_POLICY", http.StatusInternalServerError, "no upload policy has been registered")
	ErrInvalidPolicy        = New(KindConfiguration, "INVALID_POLICY", http.StatusInternalServerError, "the upload policy is invalid")
	ErrNoFiles              = New(KindBatchEmpty, "NO_FILES", http.StatusBadRequest, "you did not select a file to upload")
	ErrInternal             = New(KindPersist, "INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
)

// FromUploadCode maps a native upload error code to its predefined error.
func FromUploadCode(code int) *Error {
	switch code {
	case ErrCodeIniSize:
		return ErrIniSize
	case ErrCodeFormSize:
		return ErrFormSize
	case ErrCodePartial:
		return ErrPartial
	case ErrCodeNoFile:
		return ErrNoFile
	case ErrCodeNoTmpDir:
		return ErrNoTmpDir
	case ErrCodeCantWrite:
		return ErrCantWrite
	case ErrCodeExtension:
		return ErrExtension
	default:
		return ErrTransport
	}
}
