package oauthcb

import (
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
)

// builds the provider URL with our loopback redirect attached
func AuthURL(base, redirectURI string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid auth url: %w", err)
	}

	q := u.Query()
	q.Set("redirect_uri", redirectURI)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// opens the system browser at the given URL
func OpenBrowser(target string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", target).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", target).Start()
	default:
		return exec.Command("xdg-open", target).Start()
	}
}
