package session

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

const (
	authCookiePrefix = "sb-"
	authCookieSuffix = "-auth-token"
	base64Prefix     = "base64-"
	maxCookieChunks  = 16
)

var errNoAccessToken = errors.New("no access token in auth cookie")

// authCookieValue returns the auth-helpers cookie value for r, joining .N
// chunks in order. When projectRef is empty the first sb-*-auth-token cookie
// found is used.
func authCookieValue(r *http.Request, projectRef string) (string, bool) {
	name := ""
	if projectRef != "" {
		name = authCookiePrefix + projectRef + authCookieSuffix
	}

	whole := map[string]string{}
	chunks := map[string]map[int]string{}
	for _, c := range r.Cookies() {
		base, idx, chunked := splitChunk(c.Name)
		if !strings.HasPrefix(base, authCookiePrefix) || !strings.HasSuffix(base, authCookieSuffix) {
			continue
		}
		if name != "" && base != name {
			continue
		}
		if chunked {
			if chunks[base] == nil {
				chunks[base] = map[int]string{}
			}
			chunks[base][idx] = c.Value
			continue
		}
		whole[base] = c.Value
	}

	names := make([]string, 0, len(whole)+len(chunks))
	for n := range whole {
		names = append(names, n)
	}
	for n := range chunks {
		if _, ok := whole[n]; !ok {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return "", false
	}
	sort.Strings(names)
	first := names[0]

	if v, ok := whole[first]; ok {
		return v, true
	}

	parts := chunks[first]
	var b strings.Builder
	for i := 0; i < maxCookieChunks; i++ {
		part, ok := parts[i]
		if !ok {
			break
		}
		b.WriteString(part)
	}
	if b.Len() == 0 {
		return "", false
	}
	return b.String(), true
}

func splitChunk(name string) (string, int, bool) {
	dot := strings.LastIndexByte(name, '.')
	if dot < 0 {
		return name, 0, false
	}
	idx, err := strconv.Atoi(name[dot+1:])
	if err != nil || idx < 0 {
		return name, 0, false
	}
	return name[:dot], idx, true
}

// accessTokenFromAuthCookie extracts the access token from an auth-helpers
// cookie value. Accepted shapes:
//
//	["<access>","<refresh>",...]
//	{"access_token":"<access>",...}
//	base64-<base64 of either of the above>
func accessTokenFromAuthCookie(raw string) (string, error) {
	if unescaped, err := url.PathUnescape(raw); err == nil {
		raw = unescaped
	}
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, base64Prefix) {
		decoded, err := decodeBase64(strings.TrimPrefix(raw, base64Prefix))
		if err != nil {
			return "", err
		}
		raw = strings.TrimSpace(string(decoded))
	}

	switch {
	case strings.HasPrefix(raw, "["):
		var arr []json.RawMessage
		if err := json.Unmarshal([]byte(raw), &arr); err != nil {
			return "", err
		}
		if len(arr) == 0 {
			return "", errNoAccessToken
		}
		var token string
		if err := json.Unmarshal(arr[0], &token); err != nil || token == "" {
			return "", errNoAccessToken
		}
		return token, nil
	case strings.HasPrefix(raw, "{"):
		var obj struct {
			AccessToken string `json:"access_token"`
		}
		if err := json.Unmarshal([]byte(raw), &obj); err != nil {
			return "", err
		}
		if obj.AccessToken == "" {
			return "", errNoAccessToken
		}
		return obj.AccessToken, nil
	default:
		return "", errNoAccessToken
	}
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimRight(s, "=")
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}
