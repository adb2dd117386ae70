package models

import (
	"testing"
	"time"
)

func TestEndpointAddress(t *testing.T) {
	tests := []struct {
		name string
		ep   Endpoint
		want string
	}{
		{"ftp default", Endpoint{Scheme: SchemeFTP, Host: "h"}, "h:21"},
		{"ftps default", Endpoint{Scheme: SchemeFTP, Host: "h", Encrypt: true}, "h:990"},
		{"sftp default", Endpoint{Scheme: SchemeSFTP, Host: "h"}, "h:22"},
		{"explicit port", Endpoint{Scheme: SchemeFTP, Host: "h", Port: 2121}, "h:2121"},
		{"ipv6", Endpoint{Scheme: SchemeSFTP, Host: "::1"}, "[::1]:22"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ep.Address(); got != tt.want {
				t.Errorf("Address() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEndpointDialTimeout(t *testing.T) {
	if got := (Endpoint{}).DialTimeout(); got != DefaultTimeout {
		t.Errorf("expected default timeout, got %v", got)
	}
	if got := (Endpoint{Timeout: time.Second}).DialTimeout(); got != time.Second {
		t.Errorf("expected 1s, got %v", got)
	}
}
