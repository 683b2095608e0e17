package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCredentialFromRequestPrecedence(t *testing.T) {
	cases := []struct {
		name   string
		cookie string
		header string
		query  string
		want   string
	}{
		{"cookie wins", "from-cookie", "Bearer from-header", "from-query", "from-cookie"},
		{"header before query", "", "Bearer from-header", "from-query", "from-header"},
		{"lowercase bearer", "", "bearer from-header", "", "from-header"},
		{"query fallback", "", "", "from-query", "from-query"},
		{"non-bearer header ignored", "", "Basic abc", "from-query", "from-query"},
		{"nothing", "", "", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			target := "/ws"
			if tc.query != "" {
				target += "?token=" + tc.query
			}
			r := httptest.NewRequest(http.MethodGet, target, nil)
			if tc.cookie != "" {
				r.AddCookie(&http.Cookie{Name: "token", Value: tc.cookie})
			}
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}

			if got := credentialFromRequest(r, "token"); got != tc.want {
				t.Fatalf("credentialFromRequest() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCredentialFromRequestIgnoresOtherCookies(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?token=q", nil)
	r.AddCookie(&http.Cookie{Name: "session", Value: "c"})

	if got := credentialFromRequest(r, "token"); got != "q" {
		t.Fatalf("expected query token, got %q", got)
	}
}
