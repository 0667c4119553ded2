package log

// Common field names for structured logging
const (
	FieldComponent        = "component"
	FieldRequestID        = "request_id"
	FieldClientIP         = "client_ip"
	FieldMethod           = "method"
	FieldPath             = "path"
	FieldQuery            = "query"
	FieldStatusCode       = "status_code"
	FieldDuration         = "duration_ms"
	FieldUserAgent        = "user_agent"
	FieldSuccess          = "success"
	FieldError            = "error"
	FieldOperation        = "operation"
	FieldUserID           = "user_id"
	FieldMonth            = "month"
	FieldCategory         = "category"
	FieldAmountPaise      = "amount_paise"
	FieldDeltaPaise       = "delta_paise"
	FieldPreviousPaise    = "previous_paise"
	FieldCurrentPaise     = "current_paise"
	FieldLimitPaise       = "limit_paise"
	FieldAlertLevel       = "alert_level"
	FieldAlertScope       = "alert_scope"
	FieldNotificationType = "notification_type"
	FieldNotificationID   = "notification_id"
	FieldExpenseID        = "expense_id"
	FieldReason           = "reason"
)

// Components defines standard component names
const (
	ComponentApp          = "app"
	ComponentHTTP         = "http"
	ComponentBudget       = "budget"
	ComponentExpense      = "expense"
	ComponentNotification = "notification"
	ComponentStorage      = "storage"
	ComponentAMQP         = "amqp"
	ComponentWorker       = "worker"
	ComponentCache        = "cache"
	ComponentSecurity     = "security"
	ComponentRateLimit    = "rate_limit"
	ComponentTrace        = "trace"
	ComponentBackend      = "backend"
)

// Operations defines standard operation names
const (
	OpCreate    = "create"
	OpRead      = "read"
	OpUpdate    = "update"
	OpDelete    = "delete"
	OpList      = "list"
	OpRollover  = "rollover"
	OpReconcile = "reconcile"
	OpEvaluate  = "evaluate"
	OpEmit      = "emit"
	OpValidate  = "validate"
	OpParse     = "parse"
	OpShutdown  = "shutdown"
	OpStartup   = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithRequestID adds request ID field
func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

// WithClientIP adds client IP field
func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithUser adds the user field
func (f LogFields) WithUser(userID string) LogFields {
	f[FieldUserID] = userID
	return f
}

// WithBudgetDelta adds the fields describing a spend counter move
func (f LogFields) WithBudgetDelta(category string, delta, previous, current int64) LogFields {
	if category != "" {
		f[FieldCategory] = category
	}
	f[FieldDeltaPaise] = delta
	f[FieldPreviousPaise] = previous
	f[FieldCurrentPaise] = current
	return f
}

// WithHTTPRequest adds HTTP request fields
func (f LogFields) WithHTTPRequest(method, path, query, userAgent string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	f[FieldUserAgent] = userAgent
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
