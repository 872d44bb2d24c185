package auth_client

const (
	// Default base URL of the auth/API service
	DefaultBaseURL = "http://localhost:8080"

	// API Endpoints
	TokenEndpoint   = "/auth/token"
	RefreshEndpoint = "/auth/refresh"
	SignupEndpoint  = "/auth/signup"
	MeEndpoint      = "/api/me"

	// Headers
	AuthorizationHeader = "Authorization"
	ContentTypeHeader   = "Content-Type"
	ContentTypeJSON     = "application/json"
	BearerPrefix        = "Bearer "

	// AnonymousUsername is what /api/me reports when no principal is attached.
	AnonymousUsername = "anonymous"
)
