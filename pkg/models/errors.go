package models

import "errors"

var (
	ErrSourceUnreachable = errors.New("source unreachable")
	ErrArtifactNotFound  = errors.New("artifact not found")
	ErrUnexpectedRecord  = errors.New("unexpected raw record type")
)
