package cocoro

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
)

// Login performs the three-step handshake: fetch a fresh terminal app id
// from the relay, run the identity-provider login to obtain an
// authorization code, then exchange both for an authenticated session.
// The steps are strictly sequential; any failure aborts the handshake.
func (c *Client) Login(ctx context.Context) error {
	data, err := c.request(ctx, http.MethodGet, "setting/terminalAppId/", nil, nil)
	if err != nil {
		return err
	}
	var bootstrap struct {
		TerminalAppID string `json:"terminalAppId"`
	}
	if err := json.Unmarshal(data, &bootstrap); err != nil || bootstrap.TerminalAppID == "" {
		return NewAPIError("no terminalAppId in bootstrap response")
	}
	c.terminalAppID = bootstrap.TerminalAppID

	nonce, err := randomNonce(32)
	if err != nil {
		return NewAPIError("generate nonce: %v", err)
	}

	code, err := c.oauthLogin(ctx, nonce)
	if err != nil {
		return err
	}

	body := map[string]string{
		"terminalAppId": c.terminalAppID,
		"tempAccToken":  code,
		"password":      nonce,
	}
	_, err = c.request(ctx, http.MethodPost, "setting/login/", body,
		url.Values{"serviceName": {"sharp-eu"}})
	return err
}

// oauthLogin drives the identity provider: open the authorization request,
// submit the credential form, and capture the authorization code from the
// redirect to the app's custom URI scheme. That redirect targets no
// reachable network, so it must be intercepted rather than followed.
func (c *Client) oauthLogin(ctx context.Context, nonce string) (string, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return "", NewAPIError("create cookie jar: %v", err)
	}
	authClient := &http.Client{
		Timeout: requestTimeout,
		Jar:     jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if req.URL.Scheme == redirectScheme {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}

	authParams := url.Values{
		"scope":         {"openid profile email"},
		"client_id":     {clientID},
		"response_type": {"code"},
		"redirect_uri":  {redirectURI},
		"nonce":         {nonce},
		"ui_locales":    {"en"},
		"prompt":        {"login"},
	}
	authURL := c.authBase + "/oxauth/restv1/authorize?" + authParams.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, authURL, nil)
	if err != nil {
		return "", NewAPIError("build authorize request: %v", err)
	}
	req.Header.Set("User-Agent", browserUA)
	resp, err := authClient.Do(req)
	if err != nil {
		return "", NewConnectionError(err, "authorize request failed: %v", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if loc := captureRedirect(resp); loc != "" {
		return codeFromRedirect(loc)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", NewAuthError("authorize rejected with status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return "", NewAPIError("authorize failed with status %d", resp.StatusCode)
	}

	form := url.Values{
		"loginForm":             {"loginForm"},
		"javax.faces.ViewState": {"stateless"},
		"loginForm:username":    {c.email},
		"loginForm:password":    {c.password},
		"loginForm:loginButton": {""},
	}
	loginReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.authBase+"/oxauth/login.htm", strings.NewReader(form.Encode()))
	if err != nil {
		return "", NewAPIError("build login request: %v", err)
	}
	loginReq.Header.Set("User-Agent", browserUA)
	loginReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	loginReq.Header.Set("Referer", authURL)

	loginResp, err := authClient.Do(loginReq)
	if err != nil {
		return "", NewConnectionError(err, "login request failed: %v", err)
	}
	_, _ = io.Copy(io.Discard, loginResp.Body)
	loginResp.Body.Close()

	if loginResp.StatusCode == http.StatusUnauthorized || loginResp.StatusCode == http.StatusForbidden {
		return "", NewAuthError("login rejected with status %d", loginResp.StatusCode)
	}
	loc := captureRedirect(loginResp)
	if loc == "" {
		// The provider re-renders the login page on bad credentials
		// instead of redirecting.
		return "", NewAuthError("identity provider login failed - invalid credentials")
	}
	return codeFromRedirect(loc)
}

// captureRedirect returns the Location of an intercepted redirect to the
// custom scheme, or empty when the response is anything else.
func captureRedirect(resp *http.Response) string {
	switch resp.StatusCode {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther:
	default:
		return ""
	}
	loc := resp.Header.Get("Location")
	if !strings.HasPrefix(loc, redirectScheme+"://") {
		return ""
	}
	return loc
}

func codeFromRedirect(loc string) (string, error) {
	u, err := url.Parse(loc)
	if err != nil {
		return "", NewAuthError("unparsable redirect %q", loc)
	}
	code := u.Query().Get("code")
	if code == "" {
		return "", NewAuthError("no auth code in redirect URL")
	}
	return code, nil
}

const nonceAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomNonce(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = nonceAlphabet[int(b)%len(nonceAlphabet)]
	}
	return string(buf), nil
}
