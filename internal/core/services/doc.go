// Package services implements the core pipeline logic (aggregation,
// retrieval, generation dispatch) behind the driving ports.
package services
