package domain

// RuleConfig defines a custom post-scoring rule. Rules are CEL expressions
// evaluated per flagged account after the structural detectors have run; a
// rule that fires attaches its tag and adds its points to the account score
// (still subject to the 100 cap). Custom tags are not structural and never
// shield an account from merchant suppression.
type RuleConfig struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// Expression is a CEL expression over the account aggregates. It must
	// evaluate to bool.
	Expression string `json:"expression"`

	// Tag is attached to the account when the expression is true.
	Tag string `json:"tag"`

	// Points are added to the account score when the expression is true.
	Points float64 `json:"points"`

	// Whether rule is active
	Enabled bool `json:"enabled"`
}

// RuleHit records a custom rule firing for an account.
type RuleHit struct {
	RuleID    string  `json:"ruleId"`
	AccountID string  `json:"accountId"`
	Tag       string  `json:"tag"`
	Points    float64 `json:"points"`
}
