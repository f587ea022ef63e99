package ratelimit

import "time"

// Class identifies a traffic class. The taxonomy is closed: every routed
// endpoint is assigned exactly one class, and each class carries its own
// ceiling and window.
type Class string

const (
	// Unauthenticated browsing of public resources
	ClassAnonymousPublic Class = "anonymous_public"

	// Authenticated traffic, split by surface
	ClassAuthenticatedCustomer Class = "authenticated_customer"
	ClassAuthenticatedStaff    Class = "authenticated_staff"

	// Per-resource sub-classes for authenticated CRUD traffic
	ClassResourceList   Class = "resource_list"
	ClassResourceDetail Class = "resource_detail"
	ClassResourceCreate Class = "resource_create"
	ClassResourceUpdate Class = "resource_update"
	ClassResourceDelete Class = "resource_delete"

	// Security-sensitive actions get materially tighter ceilings and
	// longer windows than read-heavy classes
	ClassLogin       Class = "login"
	ClassOTPRequest  Class = "otp_request"
	ClassOTPVerify   Class = "otp_verify"
	ClassAccountEdit Class = "account_edit"
)

// Policy is the admission budget for one traffic class
type Policy struct {
	Ceiling int           // Max admitted requests per window
	Window  time.Duration // Fixed-reset window duration
}

// DefaultPolicies returns the standing policy table. Callers may override
// individual classes before constructing the governor.
func DefaultPolicies() map[Class]Policy {
	return map[Class]Policy{
		ClassAnonymousPublic:       {Ceiling: 120, Window: time.Minute},
		ClassAuthenticatedCustomer: {Ceiling: 300, Window: time.Minute},
		ClassAuthenticatedStaff:    {Ceiling: 600, Window: time.Minute},

		ClassResourceList:   {Ceiling: 120, Window: time.Minute},
		ClassResourceDetail: {Ceiling: 240, Window: time.Minute},
		ClassResourceCreate: {Ceiling: 60, Window: time.Minute},
		ClassResourceUpdate: {Ceiling: 60, Window: time.Minute},
		ClassResourceDelete: {Ceiling: 30, Window: time.Minute},

		ClassLogin:       {Ceiling: 5, Window: 15 * time.Minute},
		ClassOTPRequest:  {Ceiling: 3, Window: 10 * time.Minute},
		ClassOTPVerify:   {Ceiling: 10, Window: 15 * time.Minute},
		ClassAccountEdit: {Ceiling: 10, Window: time.Hour},
	}
}
