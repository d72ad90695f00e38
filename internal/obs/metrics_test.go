package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                  "/",
		"/metrics":                          "/metrics",
		"/api/shipment/A-123456":            "/api/shipment/:tracking_id",
		"/api/shipment/A-123456/update-status": "/api/shipment/:tracking_id/update-status",
		"/api/shipment/track/A-123456":      "/api/shipment/track/:tracking_id",
		"/api/shipment/list":                "/api/shipment/list",
		"/api/branch/01HZX2/delete":         "/api/branch/:slug/delete",
		"/api/branch/day_end":               "/api/branch/day_end",
		"/api/bus/01HZX2/delete":            "/api/bus/:slug/delete",
		"/api/bus/available":                "/api/bus/available",
		"/api/messages/01HZX2/read":         "/api/messages/:id/read",
		"/api/messages?page=2":              "/api/messages",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
