package utils

import (
	"net/http"
	"testing"
)

func TestRealIP(t *testing.T) {
	tests := []struct {
		name            string
		headers         map[string]string
		remoteAddr      string
		trustCloudflare bool
		want            string
	}{
		{
			name:    "forwarded-for list takes first entry",
			headers: map[string]string{"X-Forwarded-For": "1.2.3.4, 5.6.6.7"},
			want:    "1.2.3.4",
		},
		{
			name: "trusted edge header wins over everything",
			headers: map[string]string{
				"CF-Connecting-IP": "9.9.9.9",
				"X-Real-Ip":        "2.2.2.2",
				"X-Forwarded-For":  "1.2.3.4, 5.6.6.7",
			},
			trustCloudflare: true,
			want:            "9.9.9.9",
		},
		{
			name: "edge header ignored when untrusted",
			headers: map[string]string{
				"CF-Connecting-IP": "9.9.9.9",
				"X-Real-Ip":        "2.2.2.2",
			},
			want: "2.2.2.2",
		},
		{
			name:    "real-ip beats forwarded-for",
			headers: map[string]string{"X-Real-Ip": "2.2.2.2", "X-Forwarded-For": "1.2.3.4"},
			want:    "2.2.2.2",
		},
		{
			name:    "forwarded-for entries are trimmed",
			headers: map[string]string{"X-Forwarded-For": "  1.2.3.4 , 5.6.6.7"},
			want:    "1.2.3.4",
		},
		{
			name:    "platform header before socket address",
			headers: map[string]string{"True-Client-IP": "3.3.3.3"},
			want:    "3.3.3.3",
		},
		{
			name:       "socket peer address, port stripped",
			remoteAddr: "10.0.0.1:54321",
			want:       "10.0.0.1",
		},
		{
			name:       "socket peer address without port",
			remoteAddr: "10.0.0.1",
			want:       "10.0.0.1",
		},
		{
			name: "sentinel when nothing is available",
			want: UnknownIP,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &http.Request{Header: http.Header{}, RemoteAddr: tt.remoteAddr}
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			got := RealIP(r, tt.trustCloudflare)
			if got != tt.want {
				t.Errorf("RealIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
