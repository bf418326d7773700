// Package verify checks Bandcamp download codes.
//
// An Engine owns one Transport for its whole life: a retrying HTTP client
// posting to the verify endpoint, or a browser tab submitting the redeem
// form. Every code gets a random delay in [MinDelaySec, MaxDelaySec] first;
// that delay is the only rate limit, so a batch never runs codes
// concurrently.
//
// # Usage
//
//	engine, err := verify.Open(ctx, settings, creds, logger)
//	if err != nil {
//	    return err // invalid credentials or browser launch failure
//	}
//	defer engine.Close()
//
//	results := engine.VerifyBatch(ctx, codes, onProgress, nil)
//
// # Classification
//
// A 2xx response is a success unless its JSON body has a non-empty
// "errors" list; the endpoint answers 200 for redeemed codes too. The first
// error's reason becomes VerificationResult.Error. Other statuses give
// "HTTP <status>", timeouts "Request timeout after <T>s" and other
// transport failures "Request error: <err>". The browser transport's DOM
// reading is recorded in DOMValid and never changes Success.
package verify
