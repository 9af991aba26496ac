package contract

import "errors"

var (
	ErrValidation   = errors.New("validation failed")
	ErrEmptyMessage = errors.New("message is empty")
	ErrExtraction   = errors.New("extraction failed")
	ErrNotifier     = errors.New("notifier dispatch failed")
)
