package model

// Audit event type constants
const (
	AuditEventCircuitOpened    = "CIRCUIT_OPENED"
	AuditEventCircuitRecovered = "CIRCUIT_RECOVERED"
	AuditEventCircuitReset     = "CIRCUIT_RESET"
	AuditEventConfigOverridden = "CONFIG_OVERRIDDEN"
	AuditEventInvocation       = "RPC_INVOCATION"
)
