package metrics

// Key operations recorded under OperationsTotal. Both the HTTP handlers and
// the keys CLI report through these.
const (
	OperationKeyIssue  = "apikey_issue"
	OperationKeyList   = "apikey_list"
	OperationKeyRevoke = "apikey_revoke"
	OperationKeyVerify = "apikey_verify"
)

// RecordOperation counts one key operation by outcome.
func RecordOperation(operation string, success bool) {
	counter(OperationsTotal, 1, map[string]string{
		"operation": operation,
		"status":    outcome(success, "success", "failure"),
	})
}
