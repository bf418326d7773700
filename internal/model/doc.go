// Package model defines the core data structures used throughout
// the bandcamp-verificator application.
//
// # Credentials
//
// Credentials are the cookie values and crumb harvested from a logged-in
// browser session:
//
//	creds := model.Credentials{ClientID: "...", Session: "...", Crumb: "..."}
//	if err := creds.Validate(model.DefaultLimits(), true); err != nil {
//	    log.Fatal(err) // model.ValidationErrors
//	}
//
// # VerificationResult
//
// VerificationResult is the uniform record produced for every attempted code:
//
//	fmt.Println(res.Code, res.HTTPStatus, res.Success, res.Error)
package model
