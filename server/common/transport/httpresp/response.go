package httpresp

import "time"

const (
	ErrUnauthorized       = "unauthorized"
	ErrMissingBearerToken = "bearer token is required"
	ErrInvalidToken       = "invalid token"
	ErrNotFound           = "not found"
	ErrAlreadyExists      = "already exists"
	ErrInternal           = "internal server error"
	ErrCannotAddSelf      = "cannot add yourself as a contact"
	ErrTooManyPhones      = "too many phones"
	ErrEmptyRecipients    = "recipientIds must not be empty"
	ErrTooManyRecipients  = "too many recipients"
	ErrTitleTooLong       = "title is too long"
	ErrDeviceIDTooLong    = "device id is too long"
	ErrUsernameTooLong    = "username is too long"
	ErrPhoneTooLong       = "phone is too long"
	ErrBadRequest         = "bad request"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type CountResponse struct {
	Count int64 `json:"count"`
}

type InviteLinkResponse struct {
	InviteLink string `json:"inviteLink"`
}

type StatusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func NewErrorResponse(message string) ErrorResponse {
	return ErrorResponse{Error: message}
}

func NewCountResponse(count int64) CountResponse {
	return CountResponse{Count: count}
}

func NewInviteLinkResponse(link string) InviteLinkResponse {
	return InviteLinkResponse{InviteLink: link}
}

func NewStatusResponse(status string, err error) StatusResponse {
	out := StatusResponse{Status: status}
	if err != nil {
		out.Error = err.Error()
	}
	return out
}

type DeviceAuthResponse struct {
	Token     string    `json:"token"`
	DeviceID  string    `json:"deviceId"`
	IsNewUser bool      `json:"isNewUser"`
	UserID    int64     `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func NewDeviceAuthResponse(token, deviceID string, isNew bool, userID int64, expiresAt time.Time) DeviceAuthResponse {
	return DeviceAuthResponse{Token: token, DeviceID: deviceID, IsNewUser: isNew, UserID: userID, ExpiresAt: expiresAt}
}
