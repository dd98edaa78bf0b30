package constants

// Web frontend pages the payment provider redirects back to. They are
// appended to app.url.
const (
	BillingPage         = "/billing"
	CheckoutSuccessPage = BillingPage + "?success=true"
	CheckoutCancelPage  = "/pricing?canceled=true"
)

// API route constants
const (
	APIPrefix    = "/api"
	WebhookRoute = APIPrefix + "/stripe/webhook"
	HealthRoute  = "/health"
	MetricsRoute = "/metrics"
	MonitorRoute = MetricsRoute + "/monitor"
	DocsBasePath = "/docs/api/"
	DocsVersion  = "v1"
)
