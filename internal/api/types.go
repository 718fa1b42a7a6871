// Package api provides the HTTP client and typed endpoints of the nutrisync
// REST backend.
package api

// envelope wraps every successful response body.
type envelope struct {
	Data any `json:"data"`
}

// errorBody is the shape of an error response.
type errorBody struct {
	Message string `json:"message"`
}

// SendMessageRequest is the body of POST /api/conversations/{id}/messages.
type SendMessageRequest struct {
	Content string `json:"content"`
}
