package repository

// Schema definitions for the Harrier database.
// Compatible with both SQLite and PostgreSQL.

const schemaAnalyses = `
CREATE TABLE IF NOT EXISTS analyses (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    total_accounts INTEGER NOT NULL,
    flagged_accounts INTEGER NOT NULL,
    ring_count INTEGER NOT NULL,
    processing_seconds REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analyses_tenant ON analyses(tenant_id);
CREATE INDEX IF NOT EXISTS idx_analyses_created ON analyses(tenant_id, created_at);
`

const schemaSuspiciousAccounts = `
CREATE TABLE IF NOT EXISTS suspicious_accounts (
    analysis_id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    account_id TEXT NOT NULL,
    score REAL NOT NULL,
    patterns TEXT NOT NULL,
    ring_id INTEGER NOT NULL DEFAULT 0,
    position INTEGER NOT NULL,
    PRIMARY KEY (analysis_id, account_id)
);

CREATE INDEX IF NOT EXISTS idx_suspicious_tenant ON suspicious_accounts(tenant_id);
CREATE INDEX IF NOT EXISTS idx_suspicious_analysis ON suspicious_accounts(tenant_id, analysis_id, position);
`

const schemaFraudRings = `
CREATE TABLE IF NOT EXISTS fraud_rings (
    analysis_id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    ring_id INTEGER NOT NULL,
    pattern_type TEXT NOT NULL,
    members TEXT NOT NULL,
    risk_score REAL NOT NULL,
    PRIMARY KEY (analysis_id, ring_id)
);

CREATE INDEX IF NOT EXISTS idx_rings_tenant ON fraud_rings(tenant_id);
CREATE INDEX IF NOT EXISTS idx_rings_analysis ON fraud_rings(tenant_id, analysis_id, ring_id);
`

const schemaRuleConfigs = `
CREATE TABLE IF NOT EXISTS rule_configs (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    tag TEXT NOT NULL,
    points REAL NOT NULL DEFAULT 0,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_rule_configs_tenant ON rule_configs(tenant_id);
CREATE INDEX IF NOT EXISTS idx_rule_configs_enabled ON rule_configs(tenant_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaAnalyses,
		schemaSuspiciousAccounts,
		schemaFraudRings,
		schemaRuleConfigs,
	}
}
