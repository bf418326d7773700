// Package dto holds the wire shapes of Bandcamp's code verification API.
package dto

// VerifyRequest is the JSON body posted to /api/codes/1/verify.
//
// Only Code and Crumb vary; the rest mirror what the yum page sends for a
// logged-in fan. Nil pointers encode as JSON null.
type VerifyRequest struct {
	IsCorp         bool    `json:"is_corp"`
	BandID         *int64  `json:"band_id"`
	PlatformClosed bool    `json:"platform_closed"`
	HardToDownload bool    `json:"hard_to_download"`
	FanLoggedIn    bool    `json:"fan_logged_in"`
	BandURL        *string `json:"band_url"`
	WasLoggedOut   *bool   `json:"was_logged_out"`
	IsHTTPS        bool    `json:"is_https"`
	RefURL         *string `json:"ref_url"`
	Code           string  `json:"code"`
	Crumb          string  `json:"crumb"`
}

// NewVerifyRequest builds the payload for one code.
func NewVerifyRequest(code, crumb string) VerifyRequest {
	return VerifyRequest{
		IsCorp:      true,
		FanLoggedIn: true,
		IsHTTPS:     true,
		Code:        code,
		Crumb:       crumb,
	}
}

// Rejection inspects a decoded verify response. The endpoint answers 200
// for redeemed and unknown codes alike and reports them in an "errors" list.
//
// rejected is true when the list is present and non-empty; reason is the
// first entry's "reason" string, or "" if it has none.
func Rejection(body any) (reason string, rejected bool) {
	obj, ok := body.(map[string]any)
	if !ok {
		return "", false
	}
	list, ok := obj["errors"].([]any)
	if !ok || len(list) == 0 {
		return "", false
	}

	if first, ok := list[0].(map[string]any); ok {
		if r, ok := first["reason"].(string); ok {
			reason = r
		}
	}
	return reason, true
}
