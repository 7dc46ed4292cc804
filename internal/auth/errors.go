package auth

import "github.com/amoylab/tokenbridge/internal/common/errorx"

var (
	errMissingToken        = errorx.ErrInvalidRequest.WithMessage("ErrorMissingToken", "Missing token parameter.")
	errMissingBackend      = errorx.ErrInvalidRequest.WithMessage("ErrorMissingBackend", "Missing backend parameter.")
	errInvalidBackend      = errorx.ErrInvalidRequest.WithMessage("ErrorInvalidBackend", "Invalid backend parameter.")
	errMissingRefreshToken = errorx.ErrInvalidRequest.WithMessage("ErrorMissingRefreshToken", "Missing refresh token parameter.")
	errInvalidCredentials  = errorx.ErrInvalidGrant.WithMessage("ErrorInvalidCredentials", "Invalid credentials given.")
	errUserInactive        = errorx.ErrInvalidGrant.WithMessage("ErrorUserInactive", "User inactive or deleted.")
	errInvalidRefreshToken = errorx.ErrInvalidGrant.WithMessage("ErrorInvalidRefreshToken", "Invalid refresh token.")
	errRefreshTokenExpired = errorx.ErrInvalidGrant.WithMessage("ErrorRefreshTokenExpired", "Refresh token expired.")
	errRefreshTokenReuse   = errorx.ErrInvalidGrant.WithMessage("ErrorRefreshTokenReuse", "Refresh token reuse detected.")
)
