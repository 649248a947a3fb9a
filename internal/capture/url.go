package capture

import "net/url"

// withUserinfo embeds basic auth credentials into raw, which Chromium
// turns into an Authorization header for the navigation.
func withUserinfo(raw, username, password string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	u.User = url.UserPassword(username, password)
	return u.String(), nil
}
