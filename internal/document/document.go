// Package document fetches study material and turns it into text a model can read.
package document

import (
	"fmt"
)

// Roles mirror ai.RolePrimary / ai.RoleReference.
const (
	RolePrimary   = "primary"
	RoleReference = "reference"
)

// Reference points at one source document. Exactly one of Text or URI is expected; URI may be a
// filesystem path, file://, http(s)://, s3://bucket/key or a base64 data: URI.
type Reference struct {
	Name     string `json:"name"`
	Role     string `json:"role"`
	URI      string `json:"uri,omitempty"`
	Text     string `json:"text,omitempty"`
	MIMEType string `json:"mimeType,omitempty"`
}

// Fetched is the raw content behind a Reference.
type Fetched struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Prepared is a document ready to attach to a model request.
type Prepared struct {
	Name     string
	Role     string
	MIMEType string
	Text     string
	// Data is kept when no text could be extracted (scanned PDFs, images).
	Data   []byte
	Pages  int
	Tokens int
}

// FilePreparationError means a single source could not be fetched or read. It is never retried.
type FilePreparationError struct {
	Name  string
	Stage string // fetch, detect, extract
	Err   error
}

func (e *FilePreparationError) Error() string {
	return fmt.Sprintf("prepare %q (%s): %v", e.Name, e.Stage, e.Err)
}

func (e *FilePreparationError) Unwrap() error { return e.Err }
