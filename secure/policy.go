package secure

import "time"

// Well-known lockout identities. Customer logins share one generic slot;
// the admin surface has its own.
const (
	IdentityGeneric = "generic"
	IdentityAdmin   = "admin"
)

// LockoutPolicy names the failure threshold and cooldown for one login
// surface.
type LockoutPolicy struct {
	Name        string
	MaxFailures int
	Cooldown    time.Duration
}

var (
	// CustomerLoginPolicy gates the shared customer login slot.
	CustomerLoginPolicy = LockoutPolicy{
		Name:        "customer_login",
		MaxFailures: 5,
		Cooldown:    120 * time.Second,
	}

	// AdminLoginPolicy gates the admin login surface. The product has also
	// shipped a 5-attempt/120s variant for the same surface; the stricter
	// policy is in force here pending product-owner resolution.
	AdminLoginPolicy = LockoutPolicy{
		Name:        "admin_login",
		MaxFailures: 3,
		Cooldown:    300 * time.Second,
	}
)
