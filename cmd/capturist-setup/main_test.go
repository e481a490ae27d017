// SPDX-License-Identifier: MIT

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestRunRoutesKnownCommands exercises every non-interactive branch of
// run's dispatch. "menu" and the no-argument default are intentionally
// not exercised here: both launch an interactive huh form against
// os.Stdin, which a non-interactive test run cannot drive.
func TestRunRoutesKnownCommands(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"help command", []string{"help"}, false},
		{"version command", []string{"version"}, false},
		{"unknown command", []string{"bogus"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRunHelp(t *testing.T) {
	assert.NoError(t, runHelp())
}

func TestRunVersion(t *testing.T) {
	assert.NoError(t, runVersion())
}
