package host

import (
	"fmt"
	"net/http"
)

// Code is an error code.
type Code int

const (
	// Code specifically for host service.
	ErrGeneratePeerID Code = iota + 10000
	ErrInvalidConfig
	ErrRenderDocument

	// Code for common errors.
	ErrMarshalJSON
)

// Errors maps error code to error message.
var Errors = map[Code]string{
	ErrGeneratePeerID: "Could not generate peer id",
	ErrInvalidConfig:  "Client config is invalid",
	ErrRenderDocument: "Could not render hosting document",
	ErrMarshalJSON:    "Could not marshal JSON data",
}

func writeError(w http.ResponseWriter, status int, code Code) {
	http.Error(w, fmt.Sprintf("%d: %s", code, Errors[code]), status)
}
