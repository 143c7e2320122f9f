package model

// OAuth error codes used across every issuance flow. These are wire values
// and part of the public contract; expected caller mistakes surface as one of
// these, never as a Go error crossing the facade boundary.
const (
	ErrCodeInvalidClient  = "invalid_client"
	ErrCodeInvalidCode    = "invalid_code"
	ErrCodeInvalidRequest = "invalid_request"
)

// TokenIssuingResult is the uniform result type of all token issuance flows.
// On failure Error and ErrorDescription are populated and every token field
// is empty; on success Error is empty.
type TokenIssuingResult struct {
	AccessToken      string `json:"access_token,omitempty"`
	IDToken          string `json:"id_token,omitempty"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	TokenType        string `json:"token_type,omitempty"`
	ExpiresIn        int64  `json:"expires_in,omitempty"`
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// Failed reports whether the result carries an error code.
func (r TokenIssuingResult) Failed() bool { return r.Error != "" }

// TokenError builds a failure result with the given machine-readable code.
func TokenError(code, description string) TokenIssuingResult {
	return TokenIssuingResult{Error: code, ErrorDescription: description}
}

// ScopeDescriptor describes one scope offered to a caller during consent.
type ScopeDescriptor struct {
	Expression string `json:"expression"`
	Label      string `json:"label"`
	Selected   bool   `json:"selected"`
	ReadOnly   bool   `json:"read_only"`
	Invisible  bool   `json:"invisible"`
}

// SelectedExpressions returns the expressions of all selected descriptors,
// preserving order.
func SelectedExpressions(descriptors []ScopeDescriptor) []string {
	out := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		if d.Selected {
			out = append(out, d.Expression)
		}
	}
	return out
}
