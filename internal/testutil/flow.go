package testutil

// FixedFlowGenerator returns the same flow token on every call, so a
// scenario run twice produces byte-identical event records.
type FixedFlowGenerator struct {
	token string
}

// NewFixedFlowGenerator creates a generator for token. An empty token
// becomes "test-flow-default".
func NewFixedFlowGenerator(token string) *FixedFlowGenerator {
	if token == "" {
		token = "test-flow-default"
	}
	return &FixedFlowGenerator{token: token}
}

// Generate implements engine.FlowTokenGenerator.
func (g *FixedFlowGenerator) Generate() string {
	return g.token
}
