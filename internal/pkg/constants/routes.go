package constants

// Static route constants
const (
	HomeRoute      = "/"
	ChargeRoute    = "/charge"
	CompletedRoute = "/completed"
)
