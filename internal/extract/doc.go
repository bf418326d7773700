// Package extract recovers the credentials needed for code verification
// from a browser where the user is already logged in to Bandcamp.
//
// Extraction has two steps:
//
//  1. Cookies. A CookieSource yields client_id, session and identity.
//     JarSource reads installed browsers' cookie stores; LoginSource opens
//     a browser window on the status page and polls its cookies until the
//     user has logged in.
//  2. Crumb. The status page is fetched with those cookies (or reused if
//     the source already rendered it) and searched with bandcamp.ExtractCrumb.
//
// AutoExtract runs both and reports every failure without discarding the
// steps that worked:
//
//	ex := extract.FromSettings(settings, false, logger)
//	res := ex.AutoExtract(ctx, "firefox")
//	if !res.Success {
//	    return res.Err()
//	}
//	creds := res.Credentials // Crumb may be empty; see res.Failures
//
// Failures wrap the package's sentinel errors and can be tested with errors.Is.
package extract
