/*
Package errs provides custom error types and application-level error code constants.

These error codes identify specific chat, session, and system failures both inside
the client core and in the responses produced by the development relay.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect.
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007
)

// 2xxx: Chat Content Errors
const (
	// ErrEmptyMessage indicates that the message content is empty after trimming.
	ErrEmptyMessage = 2201

	// ErrMessageContentTooLong indicates that the message content exceeded the maximum length.
	ErrMessageContentTooLong = 2202

	// ErrMessageIDRequired indicates that a delete was requested without a message id.
	ErrMessageIDRequired = 2203
)

// 3xxx: Session, Connection, and Security Errors
const (
	// ErrNotConnected indicates an outbound intent while the channel is not connected.
	ErrNotConnected = 3001

	// ErrSessionRequired indicates an operation that needs a valid session.
	ErrSessionRequired = 3002

	// ErrAdminRequired indicates a moderation intent from a non-admin session.
	ErrAdminRequired = 3003

	// ErrInvalidCredentials indicates the admin password was rejected.
	ErrInvalidCredentials = 3004

	// ErrAlreadySignedIn indicates a role selection while a session is active.
	ErrAlreadySignedIn = 3005

	// ErrInvalidRole indicates a role outside admin/receiver.
	ErrInvalidRole = 3006

	// ErrSendQueueFull indicates the outbound queue could not accept another frame.
	ErrSendQueueFull = 3007

	// ErrAlreadyConnecting indicates Open was called on a manager that is not disconnected.
	ErrAlreadyConnecting = 3008
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified internal error.
	ErrUnknown = 5000

	// ErrServerUnavailable indicates the remote server could not be reached or answered unexpectedly.
	ErrServerUnavailable = 5001
)
