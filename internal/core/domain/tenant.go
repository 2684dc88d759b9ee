package domain

import "strings"

// TenantContext scopes a retrieval call. Every cache entry, result and
// log record produced under it carries the tenant and correlation ids.
type TenantContext struct {
	TenantID      string `json:"tenant_id"`
	CorrelationID string `json:"correlation_id"`
	Environment   string `json:"environment"`
}

func (t TenantContext) Validate() error {
	if strings.TrimSpace(t.TenantID) == "" {
		return WrapError(ErrInvalidInput, "tenant context", errMissingTenant)
	}
	return nil
}
