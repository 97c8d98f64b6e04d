package chessdto

// Error codes carried by DomainError and the outbound error event.
const (
	CodeInvalidMove     = "INVALID_MOVE"
	CodeGameNotFound    = "GAME_NOT_FOUND"
	CodeUnauthenticated = "UNAUTHENTICATED"
	CodeNotAParticipant = "NOT_A_PARTICIPANT"
	CodeBadRequest      = "BAD_REQUEST"
	CodeInternal        = "INTERNAL"
)

type DomainError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "chess service error"
}
