package engine

import "github.com/google/uuid"

// FlowTokenGenerator issues the correlation token stamped on the event of
// each operation. Records sharing a token came from the same operation.
type FlowTokenGenerator interface {
	Generate() string
}

// UUIDv7Generator is the default generator. Tokens sort by creation time, so
// the event log can be grouped by flow without a separate index.
type UUIDv7Generator struct{}

// Generate panics only if the system random source fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
