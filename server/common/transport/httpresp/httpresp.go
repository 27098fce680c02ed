package httpresp

const (
	ErrSessionRequired     = "sign in required"
	ErrInvalidCredentials  = "invalid credentials"
	ErrInvalidRequest      = "invalid request"
	ErrMissingDocID        = "document id is required"
	ErrMissingFile         = "file is required"
	ErrForbidden           = "forbidden"
	ErrInsufficientRole    = "insufficient permissions"
	ErrNotFound            = "not found"
	ErrUpstreamUnavailable = "locker service unavailable"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

type IDResponse struct {
	ID string `json:"id"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type SessionResponse struct {
	SignedIn bool   `json:"signedIn"`
	UID      string `json:"uid,omitempty"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"`
}

func NewErrorResponse(message string) ErrorResponse {
	return ErrorResponse{Error: message}
}

func NewKindErrorResponse(kind, message string) ErrorResponse {
	return ErrorResponse{Error: message, Kind: kind}
}

func NewOKResponse() OKResponse {
	return OKResponse{OK: true}
}

func NewIDResponse(id string) IDResponse {
	return IDResponse{ID: id}
}

func NewMessageResponse(message string) MessageResponse {
	return MessageResponse{Message: message}
}

func NewStatusResponse(status string) StatusResponse {
	return StatusResponse{Status: status}
}

func NewSessionResponse(uid, email, role string) SessionResponse {
	if uid == "" {
		return SessionResponse{}
	}
	return SessionResponse{SignedIn: true, UID: uid, Email: email, Role: role}
}
