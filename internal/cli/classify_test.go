package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestClassifyCommand(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr bool
	}{
		{name: "Unauthorized", args: []string{"classify", "401"}, want: "retriable_after_reauth"},
		{name: "Unavailable", args: []string{"classify", "503"}, want: "retriable_immediately"},
		{name: "Not Found", args: []string{"classify", "404"}, want: "fatal"},
		{name: "Rate Limit Reason", args: []string{"classify", "403", "--reason", "rateLimitExceeded"}, want: "retriable_immediately"},
		{name: "Not A Number", args: []string{"classify", "abc"}, wantErr: true},
		{name: "Out Of Range", args: []string{"classify", "42"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classifyReason = ""
			var out bytes.Buffer
			rootCommand.SetOut(&out)
			rootCommand.SetErr(&out)
			rootCommand.SetArgs(tt.args)

			err := rootCommand.Execute()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Execute() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !strings.Contains(out.String(), tt.want) {
				t.Errorf("output = %q, want it to contain %q", out.String(), tt.want)
			}
		})
	}
}

func TestBindPort(t *testing.T) {
	tests := []struct {
		address string
		want    int
		wantErr bool
	}{
		{address: "0.0.0.0:8080", want: 8080},
		{address: ":9090", want: 9090},
		{address: "localhost", wantErr: true},
		{address: "host:http", wantErr: true},
	}

	for _, tt := range tests {
		got, err := bindPort(tt.address)
		if (err != nil) != tt.wantErr {
			t.Errorf("bindPort(%q) error = %v, wantErr %v", tt.address, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("bindPort(%q) = %d, want %d", tt.address, got, tt.want)
		}
	}
}
