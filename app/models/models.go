package models

// All returns every model managed by this application, in dependency order,
// for AutoMigrate in development and tests.
func All() []interface{} {
	return []interface{}{
		&UserProfile{},
		&Workspace{},
		&WorkspaceMember{},
		&BillingCustomer{},
		&Subscription{},
		&StripeEvent{},
		&BillingMetricsDaily{},
	}
}
