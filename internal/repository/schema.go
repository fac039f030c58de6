package repository

import "fmt"

// Schema definitions for the risk service database.
// Compatible with both SQLite and PostgreSQL.

// schemaRisks defines the risks table. The impact column type is filled
// in per driver: SQLite would coerce NUMERIC text into a REAL and drop
// digits, so it keeps the decimal's text form instead.
// criticality and PrioCriticality are derived on read and have no column.
const schemaRisks = `
CREATE TABLE IF NOT EXISTS risks (
    id TEXT PRIMARY KEY,
    title TEXT,
    owner TEXT,
    descr TEXT,
    prio_code TEXT,
    impact %s,
    bp_business_partner TEXT,
    created_at TIMESTAMP NOT NULL,
    modified_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_risks_bp ON risks(bp_business_partner);
CREATE INDEX IF NOT EXISTS idx_risks_prio ON risks(prio_code);
`

// impactType returns the column type that stores impact without loss.
func impactType(driver string) string {
	if driver == "postgres" {
		return "NUMERIC"
	}
	return "TEXT"
}

// AllSchemas returns all schema statements in order for the driver.
func AllSchemas(driver string) []string {
	return []string{
		fmt.Sprintf(schemaRisks, impactType(driver)),
	}
}
