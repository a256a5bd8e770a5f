package metrics

import (
	"testing"
)

func TestNew_GathersMetrics(t *testing.T) {
	m := New()

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	// Should include at least Go runtime and process collectors.
	if len(families) == 0 {
		t.Fatal("expected non-empty metric families from Gather()")
	}

	// Vec collectors only show up once a label set has been touched.
	m.RequestsTotal.WithLabelValues("GET", "200", "service:ORDER").Inc()
	m.BackendFailures.WithLabelValues("ORDER").Inc()
	m.BodySubstitution.WithLabelValues("request", "json").Inc()

	families, err = m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	want := map[string]bool{
		"storefront_gateway_http_requests_total":      false,
		"storefront_gateway_backend_failures_total":   false,
		"storefront_gateway_body_substitutions_total": false,
	}
	for _, f := range families {
		if _, ok := want[f.GetName()]; ok {
			want[f.GetName()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected %s in gathered metrics", name)
		}
	}
}

func TestNormalizeMethod(t *testing.T) {
	tests := []struct {
		method string
		want   string
	}{
		{"GET", "GET"},
		{"POST", "POST"},
		{"PUT", "PUT"},
		{"DELETE", "DELETE"},
		{"PATCH", "PATCH"},
		{"HEAD", "HEAD"},
		{"OPTIONS", "OPTIONS"},
		{"FOOBAR", "other"},
		{"get", "other"},
		{"", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			got := NormalizeMethod(tt.method)
			if got != tt.want {
				t.Errorf("NormalizeMethod(%q) = %q, want %q", tt.method, got, tt.want)
			}
		})
	}
}

func TestRouteLabel(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		canonical string
		want      string
	}{
		{"resolved service", "/api/*", "PRODUCT", "service:PRODUCT"},
		{"unresolved service", "/api/*", "", "/api/*"},
		{"healthz", "/healthz", "", "/healthz"},
		{"not found", "", "", "other"},
		{"catch-all", "/*", "", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RouteLabel(tt.path, tt.canonical); got != tt.want {
				t.Errorf("RouteLabel(%q, %q) = %q, want %q", tt.path, tt.canonical, got, tt.want)
			}
		})
	}
}
