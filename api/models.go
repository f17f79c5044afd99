package api

// CustomerLoginRequest is the JSON body for POST /auth/login/customer.
type CustomerLoginRequest struct {
	Phone string `json:"phone"`
}

// AdminLoginRequest is the JSON body for POST /auth/login/admin.
type AdminLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is returned from both login endpoints.
type LoginResponse struct {
	Token string `json:"token"`
	ID    string `json:"id"`
	Role  string `json:"role"`
}

// SessionResponse is returned from GET /auth/session.
type SessionResponse struct {
	Authenticated bool   `json:"authenticated"`
	ID            string `json:"id,omitempty"`
	Role          string `json:"role,omitempty"`
}

// CSRFTokenResponse is returned from GET /auth/csrf.
type CSRFTokenResponse struct {
	Token string `json:"token"`
}

// LockoutStatusResponse is returned from GET /auth/lockout/{identity}.
type LockoutStatusResponse struct {
	Identity          string `json:"identity"`
	Locked            bool   `json:"locked"`
	RemainingSeconds  int    `json:"remaining_seconds"`
	RemainingAttempts int    `json:"remaining_attempts"`
}

// CreateCustomerRequest is the JSON body for POST /admin/customers.
type CreateCustomerRequest struct {
	Phone     string `json:"phone"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// CustomerResponse describes one customer record.
type CustomerResponse struct {
	ID        string `json:"id"`
	Phone     string `json:"phone"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Active    bool   `json:"active"`
	CreatedAt int64  `json:"created_at"`
}

// UpdateAdminCredentialsRequest is the JSON body for PUT /admin/credentials.
type UpdateAdminCredentialsRequest struct {
	CurrentPassword string `json:"current_password"`
	NewEmail        string `json:"new_email,omitempty"`
	NewPassword     string `json:"new_password,omitempty"`
}

// EventResponse describes one persisted security event.
type EventResponse struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	UserID    string `json:"user_id,omitempty"`
	Details   string `json:"details,omitempty"`
}

// ListEventsResponse is returned from GET /admin/events.
type ListEventsResponse struct {
	Events []EventResponse `json:"events"`
}

// SuspiciousActivityResponse is returned from GET /admin/suspicious/{userID}.
type SuspiciousActivityResponse struct {
	UserID         string `json:"user_id"`
	RecentFailures int    `json:"recent_failures"`
	Suspicious     bool   `json:"suspicious"`
}

// SetRecoveryAnswersRequest is the JSON body for POST /auth/recovery/answers.
type SetRecoveryAnswersRequest struct {
	Answers []string `json:"answers"`
}

// StartRecoveryRequest is the JSON body for POST /auth/recovery/start.
type StartRecoveryRequest struct {
	Identity string `json:"identity"`
}

// RecoveryFlowResponse reports the state of an in-flight recovery flow.
type RecoveryFlowResponse struct {
	FlowID   string `json:"flow_id"`
	State    string `json:"state"`
	Question string `json:"question,omitempty"`
}

// RecoveryAnswerRequest is the JSON body for POST /auth/recovery/{flowID}/answer.
type RecoveryAnswerRequest struct {
	Answer string `json:"answer"`
}

// RecoveryPasswordRequest is the JSON body for POST /auth/recovery/{flowID}/password.
type RecoveryPasswordRequest struct {
	Password string `json:"password"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
