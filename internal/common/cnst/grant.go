package cnst

// GrantType is the value of the grant_type request parameter
type GrantType string

const (
	GrantConvertToken GrantType = "convert_token"
	GrantRefreshToken GrantType = "refresh_token"
)

func (g GrantType) String() string {
	return string(g)
}

// ClientType represents the OAuth2 client type of an application
type ClientType string

const (
	ClientConfidential ClientType = "confidential"
	ClientPublic       ClientType = "public"
)

const (
	// TokenTypeBearer is the only token type issued
	TokenTypeBearer = "Bearer"
)
