// Package browser drives a Chrome instance through the DevTools protocol
// (chromedp) for the steps that need a real page: watching a manual login,
// rendering the logged-in status page, and submitting codes through the
// redeem form while capturing the background API response.
//
// # Usage
//
//	s, err := browser.Launch(ctx, browser.Config{Headless: true})
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	s.InjectCookies(ctx, ".bandcamp.com", map[string]string{"client_id": id, "session": sess})
//	res, err := s.SubmitCode(ctx, "https://bandcamp.com/yum", "api/codes/1/verify", code,
//	    10*time.Second, 3*time.Second)
//
// SubmitCode matches the first response whose URL contains the match string
// and waits for its loading to finish before reading the body.
package browser
