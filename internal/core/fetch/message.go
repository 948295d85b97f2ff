package fetch

import (
	"errors"
	"fmt"
)

// User-facing messages in the catalog locale.
const (
	MsgTimeout      = "El backend tardó demasiado en responder. Intenta nuevamente."
	MsgNetwork      = "No se pudo conectar con el backend (red/CORS). Intenta nuevamente."
	MsgUnexpected   = "Respuesta inesperada del backend. Intenta nuevamente."
	MsgGeneric      = "No se pudo consultar ICD-10. Intenta nuevamente."
	MsgUnconfigured = "Falta configurar la URL base del catálogo CIE-10 (catalog.base_url)."
)

// UserMessage renders err as the text shown to the person searching.
// Cancellation renders as the empty string.
func UserMessage(err error) string {
	if err == nil || IsCanceled(err) {
		return ""
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return MsgGeneric
	}

	switch {
	case apiErr.Status != 0 && apiErr.Detail != "":
		return fmt.Sprintf("%s (HTTP %d)", apiErr.Detail, apiErr.Status)
	case apiErr.Status != 0:
		return fmt.Sprintf("Error del backend (HTTP %d).", apiErr.Status)
	case apiErr.Code == CodeTimeout:
		return MsgTimeout
	case apiErr.Code == CodeNetwork:
		return MsgNetwork
	default:
		return MsgUnexpected
	}
}
