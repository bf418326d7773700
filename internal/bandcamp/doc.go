// Package bandcamp knows how Bandcamp pages carry the data this tool needs.
//
// # Crumb Extraction
//
// Requests to the code verification endpoint must carry a "crumb", a
// short-lived anti-forgery token that Bandcamp embeds in pages rendered for
// a logged-in fan. Where exactly it appears has changed over time, so
// ExtractCrumb runs an ordered list of patterns and returns the first hit:
//
//	crumb, pattern, err := bandcamp.ExtractCrumb(html)
//	if err != nil {
//	    return err
//	}
//	log.Printf("crumb found via %s", pattern)
//
// The first three patterns look at the parsed document (goquery); the last
// two scan the raw markup, which also catches tokens inside JSON blobs that
// were HTML-escaped into attributes.
//
// # Wire Format
//
// The dto subpackage holds the verify request payload and a helper that
// reads the "errors" list of a response.
package bandcamp
