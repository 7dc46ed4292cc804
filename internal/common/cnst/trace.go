package cnst

// Tracer names used across the service
const (
	TraceAuth    = "tokenbridge/auth"
	TraceGateway = "tokenbridge/social"
)

// Span names
const (
	SpanConvertToken   = "auth.convert_token"
	SpanRefreshToken   = "auth.refresh_token"
	SpanSocialUserData = "social.user_data"
)

// Attribute keys
const (
	AttrClientID    = "oauth2.client_id"
	AttrGrantType   = "oauth2.grant_type"
	AttrBackend     = "social.backend"
	AttrTokenReused = "oauth2.token_reused"
	AttrErrorReason = "error.reason"
	AttrHTTPStatus  = "http.status_code"
)
