package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                    "/",
		"/metrics":                            "/metrics",
		"/v1/tenants":                         "/v1/tenants",
		"/v1/tenants/01J5XQ":                  "/v1/tenants/:id",
		"/v1/tenants/01J5XQ/roles":            "/v1/tenants/:id/roles",
		"/v1/roles/01J5XQ":                    "/v1/roles/:id",
		"/v1/roles/01J5XQ/permissions":        "/v1/roles/:id/permissions",
		"/v1/users/01J5XQ/assignments":        "/v1/users/:id/assignments",
		"/v1/users/01J5XQ/assignments/01J5XR": "/v1/users/:id/assignments/:role_id",
		"/v1/me/tenants":                      "/v1/me/tenants",
		"/v1/permissions?resource=clientes":   "/v1/permissions",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
