package errs

import "net/http"

// errorMap stores the CustomError template for every application error code.
// Status is only meaningful for errors the development relay returns over HTTP.
var errorMap = map[int]CustomError{
	// 1xxx
	ErrInvalidParams:        {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrUnsupportedMediaType: {Code: ErrUnsupportedMediaType, Message: "Unsupported request format.", Status: http.StatusUnsupportedMediaType},
	ErrInvalidJSONFormat:    {Code: ErrInvalidJSONFormat, Message: "Unsupported request format.", Status: http.StatusBadRequest},
	ErrExtraContentInBody:   {Code: ErrExtraContentInBody, Message: "Request contains unexpected data.", Status: http.StatusBadRequest},
	ErrRateLimitExceeded:    {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	// 2xxx
	ErrEmptyMessage:          {Code: ErrEmptyMessage, Message: "Message cannot be empty."},
	ErrMessageContentTooLong: {Code: ErrMessageContentTooLong, Message: "Message is too long."},
	ErrMessageIDRequired:     {Code: ErrMessageIDRequired, Message: "Message id is required."},

	// 3xxx
	ErrNotConnected:       {Code: ErrNotConnected, Message: "Not connected to the chat server."},
	ErrSessionRequired:    {Code: ErrSessionRequired, Message: "Please choose a role to continue."},
	ErrAdminRequired:      {Code: ErrAdminRequired, Message: "Only admins can moderate messages."},
	ErrInvalidCredentials: {Code: ErrInvalidCredentials, Message: "Invalid password"},
	ErrAlreadySignedIn:    {Code: ErrAlreadySignedIn, Message: "You are already signed in."},
	ErrInvalidRole:        {Code: ErrInvalidRole, Message: "Invalid role."},
	ErrSendQueueFull:      {Code: ErrSendQueueFull, Message: "Too many pending messages. Please try again."},
	ErrAlreadyConnecting:  {Code: ErrAlreadyConnecting, Message: "Connection already in progress."},

	// 5xxx
	ErrUnknown:           {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrServerUnavailable: {Code: ErrServerUnavailable, Message: "Connection error", Status: http.StatusBadGateway},
}
