package pool

import "context"

// Authorizer scores an account before it may join the whitelist. Higher is riskier.
type Authorizer interface {
	RiskLevel(ctx context.Context, account string) (uint8, error)
}

// StaticAuthorizer answers from a fixed table; unknown accounts score zero.
type StaticAuthorizer map[string]uint8

func (a StaticAuthorizer) RiskLevel(_ context.Context, account string) (uint8, error) {
	return a[account], nil
}
