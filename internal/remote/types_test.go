package remote

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEndpointValidate(t *testing.T) {
	tests := []struct {
		name  string
		ep    Endpoint
		valid bool
	}{
		{"complete", Endpoint{Host: "web1", Port: 2222, Username: "ops"}, true},
		{"default port", Endpoint{Host: "web1", Username: "ops"}, true},
		{"no host", Endpoint{Username: "ops"}, false},
		{"no user", Endpoint{Host: "web1"}, false},
		{"port out of range", Endpoint{Host: "web1", Port: 70000, Username: "ops"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ep.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
