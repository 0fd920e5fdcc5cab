package app

import (
	"fmt"
	"net/http"

	"docrepo/internal/docengine"
)

// DomainError is an HTTP-shaped error the handler layer can render directly.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{Status: status, Code: code, Message: message, Details: details}
}

// mapEngineError translates a docengine.Kind into the HTTP status/code pair
// the handler layer renders (spec §7's error taxonomy, given an HTTP shape).
func mapEngineError(err error) *DomainError {
	kind := docengine.KindOf(err)
	status, code := statusForKind(kind)
	return domainError(status, code, err.Error(), nil)
}

func statusForKind(kind docengine.Kind) (int, string) {
	switch kind {
	case docengine.KindInvalidPath, docengine.KindUnsupportedType, docengine.KindEncodingNotUtf8:
		return http.StatusBadRequest, string(kind)
	case docengine.KindNotFound, docengine.KindRepositoryMissing:
		return http.StatusNotFound, string(kind)
	case docengine.KindAlreadyExists:
		return http.StatusConflict, string(kind)
	case docengine.KindWrongBranch, docengine.KindUnknownBranch, docengine.KindDetachedHead,
		docengine.KindUncommittedChanges, docengine.KindSyncPreconditionFailed,
		docengine.KindRebaseRequired, docengine.KindRebaseConflict, docengine.KindLockNotHeld:
		return http.StatusConflict, string(kind)
	case docengine.KindBusy:
		return http.StatusTooManyRequests, string(kind)
	case docengine.KindCanceled:
		return 499, string(kind)
	case docengine.KindRemoteUnreachable:
		return http.StatusBadGateway, string(kind)
	case docengine.KindIoFailure, docengine.KindGitObjectCorrupt:
		return http.StatusInternalServerError, string(kind)
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}
