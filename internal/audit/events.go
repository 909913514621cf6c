package audit

// Event name constants for the required event families (spec §4.K).
const (
	EventOperationStart    = "operation_start"
	EventOperationComplete = "operation_complete"
	EventOperationFailure  = "operation_failure"
	EventStatusCheck       = "status_check"
	EventAuthorityOp       = "authority_operation"
	EventEncryption        = "encryption"
	EventDecryption        = "decryption"
	EventEmergencyOp       = "emergency_operation"
	EventHealthCheck       = "health_check"
)

// OperationStart logs the beginning of a coordinator operation.
func OperationStart(l Logger, operationID, operation, path string) {
	l.Emit(LevelInfo, EventOperationStart,
		String("operation_id", operationID),
		String("operation", operation),
		String("path", path),
	)
}

// OperationComplete logs the successful end of a coordinator operation.
func OperationComplete(l Logger, operationID, operation string, durationMs int64) {
	l.Emit(LevelInfo, EventOperationComplete,
		String("operation_id", operationID),
		String("operation", operation),
		Int("duration_ms", int(durationMs)),
	)
}

// OperationFailure logs a failed coordinator operation.
func OperationFailure(l Logger, operationID, operation string, err error) {
	l.Emit(LevelError, EventOperationFailure,
		String("operation_id", operationID),
		String("operation", operation),
		Err(err),
	)
}

// StatusCheck logs a repository status scan.
func StatusCheck(l Logger, path string, total, encrypted, unencrypted int) {
	l.Emit(LevelInfo, EventStatusCheck,
		String("path", path),
		Int("total_files", total),
		Int("encrypted_files", encrypted),
		Int("unencrypted_files", unencrypted),
	)
}

// AuthorityOperation logs a recipient-group authority management action
// (create/list/add/remove/audit).
func AuthorityOperation(l Logger, action, groupName string, tier string) {
	l.Emit(LevelInfo, EventAuthorityOp,
		String("action", action),
		String("group", groupName),
		String("authority_tier", tier),
	)
}

// Encryption logs a completed (or failed) encryption with the extended
// fields the spec requires: identity type, recipient count, recipient
// group hash, streaming strategy, authority tier, success flag.
func Encryption(l Logger, path, identityType string, recipientCount int, recipientHash, strategy, authorityTier string, success bool) {
	l.Emit(levelFor(success), EventEncryption,
		String("path", path),
		String("identity_type", identityType),
		Int("recipient_count", recipientCount),
		String("recipient_group_hash", recipientHash),
		String("streaming_strategy", strategy),
		String("authority_tier", authorityTier),
		Bool("success", success),
	)
}

// Decryption logs a completed (or failed) decryption.
func Decryption(l Logger, path, identityType, strategy string, success bool) {
	l.Emit(levelFor(success), EventDecryption,
		String("path", path),
		String("identity_type", identityType),
		String("streaming_strategy", strategy),
		Bool("success", success),
	)
}

// EmergencyOperation logs a danger-mode in-place operation.
func EmergencyOperation(l Logger, path, reason string) {
	l.Emit(LevelWarn, EventEmergencyOp,
		String("path", path),
		String("reason", reason),
	)
}

// HealthCheck logs the result of an adapter round-trip self-test.
func HealthCheck(l Logger, success bool, detail string) {
	l.Emit(levelFor(success), EventHealthCheck,
		Bool("success", success),
		String("detail", detail),
	)
}

// Info/Warn/Error are generic passthroughs for ad-hoc events that do not
// fit one of the named families above.
func Info(l Logger, event string, fields ...Field)  { l.Emit(LevelInfo, event, fields...) }
func Warn(l Logger, event string, fields ...Field)  { l.Emit(LevelWarn, event, fields...) }
func Error(l Logger, event string, fields ...Field) { l.Emit(LevelError, event, fields...) }

func levelFor(success bool) Level {
	if success {
		return LevelInfo
	}
	return LevelError
}
