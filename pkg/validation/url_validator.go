package validation

import (
	"net/url"
	"strings"

	apperrors "github.com/anime-shed/line-profile-studio/internal/errors"
)

// URLValidator checks the asset URLs the backend hands back. Assets are either
// absolute http(s) URLs or paths rooted on the backend ("/static/...").
type URLValidator struct {
	allowedSchemes []string
	allowedHosts   []string
	allowRelative  bool
}

// NewURLValidator creates a URL validator with default settings
func NewURLValidator() *URLValidator {
	return &URLValidator{
		allowedSchemes: []string{"http", "https"},
		allowedHosts:   []string{}, // empty means all hosts allowed
		allowRelative:  true,
	}
}

// NewURLValidatorWithOptions creates a URL validator with custom options
func NewURLValidatorWithOptions(schemes []string, hosts []string, allowRelative bool) *URLValidator {
	return &URLValidator{
		allowedSchemes: schemes,
		allowedHosts:   hosts,
		allowRelative:  allowRelative,
	}
}

// ValidateAssetURL validates a URL received from the backend
func (v *URLValidator) ValidateAssetURL(assetURL string) error {
	if strings.TrimSpace(assetURL) == "" {
		return apperrors.NewValidationError("asset URL cannot be empty", nil)
	}

	parsedURL, err := url.Parse(assetURL)
	if err != nil {
		return apperrors.NewValidationError("invalid asset URL format", err)
	}

	if !parsedURL.IsAbs() {
		if !v.allowRelative {
			return apperrors.NewValidationError("relative asset URLs not allowed", nil)
		}
		if parsedURL.Host != "" || !strings.HasPrefix(parsedURL.Path, "/") {
			return apperrors.NewValidationError("relative asset URL must be an absolute path", nil)
		}
		return nil
	}

	if !v.isSchemeAllowed(parsedURL.Scheme) {
		return apperrors.NewValidationError("asset URL scheme not allowed", nil)
	}

	if parsedURL.Host == "" {
		return apperrors.NewValidationError("asset URL must have a valid host", nil)
	}

	if len(v.allowedHosts) > 0 && !v.isHostAllowed(parsedURL.Host) {
		return apperrors.NewValidationError("asset URL host not allowed", nil)
	}

	return nil
}

// ValidateBaseURL validates the configured backend base URL
func (v *URLValidator) ValidateBaseURL(baseURL string) error {
	parsedURL, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return apperrors.NewValidationError("invalid base URL format", err)
	}
	if !v.isSchemeAllowed(parsedURL.Scheme) || parsedURL.Host == "" {
		return apperrors.NewValidationError("base URL must be an absolute http(s) URL", nil)
	}
	return nil
}

func (v *URLValidator) isSchemeAllowed(scheme string) bool {
	for _, allowed := range v.allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

// isHostAllowed returns true if no host restrictions are set
func (v *URLValidator) isHostAllowed(host string) bool {
	if len(v.allowedHosts) == 0 {
		return true
	}
	for _, allowed := range v.allowedHosts {
		if host == allowed {
			return true
		}
	}
	return false
}
