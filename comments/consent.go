package comments

import (
	"context"
	"fmt"
	"net/url"
	"regexp"

	ythttp "ytcomments/http"
)

// hiddenInputRE matches the hidden form inputs on the consent interstitial.
var hiddenInputRE = regexp.MustCompile(`<input\s+type="hidden"\s+name="([A-Za-z0-9_]+)"\s+value="([A-Za-z0-9_\-\.]*)"\s*(?:required|)\s*>`)

// resolveConsent resubmits the consent form the platform serves in some
// regions before allowing access to a watch page. It collects the hidden
// form fields from the interstitial, posts them to the consent-save
// endpoint together with the original page URL, and returns the response,
// which is the originally requested page.
func resolveConsent(ctx context.Context, client *ythttp.Client, consentURL string, page *ythttp.Response, originalURL string) (*ythttp.Response, error) {
	params := url.Values{}
	for _, m := range hiddenInputRE.FindAllStringSubmatch(string(page.Body), -1) {
		params.Set(m[1], m[2])
	}
	params.Set("continue", originalURL)
	params.Set("set_eom", "false")
	params.Set("set_ytc", "true")
	params.Set("set_apyt", "true")

	resp, err := client.Post(ctx, consentURL+"?"+params.Encode(), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("resolve consent: %w", err)
	}
	return resp, nil
}
