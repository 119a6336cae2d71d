package remote

import "testing"

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		in         string
		want       Endpoint
		shouldFail bool
	}{
		{
			name: "scheme with port",
			in:   "git://example.com:9000/project",
			want: Endpoint{Host: "example.com", Port: 9000, Repo: "project"},
		},
		{
			name: "scheme default port",
			in:   "git://example.com/team/project",
			want: Endpoint{Host: "example.com", Port: DefaultPort, Repo: "team/project"},
		},
		{
			name: "bare host port path",
			in:   "localhost:9418/project",
			want: Endpoint{Host: "localhost", Port: 9418, Repo: "project"},
		},
		{
			name: "trailing slash",
			in:   "127.0.0.1:7000/project/",
			want: Endpoint{Host: "127.0.0.1", Port: 7000, Repo: "project"},
		},
		{name: "empty", in: "", shouldFail: true},
		{name: "http scheme", in: "https://example.com/project", shouldFail: true},
		{name: "no repository", in: "git://example.com:9418/", shouldFail: true},
		{name: "escape", in: "git://example.com/../etc", shouldFail: true},
		{name: "bad port", in: "git://example.com:99999/project", shouldFail: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ep, err := ParseEndpoint(tc.in)
			if tc.shouldFail {
				if err == nil {
					t.Fatalf("expected error, got %+v", ep)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseEndpoint: %v", err)
			}
			if ep != tc.want {
				t.Fatalf("ParseEndpoint(%q) = %+v, want %+v", tc.in, ep, tc.want)
			}
		})
	}
}

func TestEndpointString(t *testing.T) {
	ep := Endpoint{Host: "example.com", Port: 9418, Repo: "team/project"}
	if got, want := ep.String(), "git://example.com:9418/team/project"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
	back, err := ParseEndpoint(ep.String())
	if err != nil {
		t.Fatalf("ParseEndpoint: %v", err)
	}
	if back != ep {
		t.Fatalf("round trip = %+v, want %+v", back, ep)
	}
}
