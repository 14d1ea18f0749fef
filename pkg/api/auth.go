package api

import "github.com/gin-gonic/gin"

// extractAuthor resolves the acting user for audit fields (publish_note
// authorship, compiled_by) from oauth2-proxy-style passthrough headers,
// in priority order: X-Forwarded-User > X-Forwarded-Email > "api-client".
// Real bearer-token verification is out of scope; this only reads
// whatever an upstream auth proxy already attached.
func extractAuthor(c *gin.Context) string {
	if user := c.GetHeader("X-Forwarded-User"); user != "" {
		return user
	}
	if email := c.GetHeader("X-Forwarded-Email"); email != "" {
		return email
	}
	return "api-client"
}

// defaultCompanyID is used when a request carries no X-Company-ID header,
// so the handlers have a tenant to scope queries by even with auth out of
// scope.
const defaultCompanyID = "default"

// extractCompanyID resolves the requesting tenant from the same style of
// passthrough header an auth proxy would attach in front of this service.
func extractCompanyID(c *gin.Context) string {
	if companyID := c.GetHeader("X-Company-ID"); companyID != "" {
		return companyID
	}
	return defaultCompanyID
}
