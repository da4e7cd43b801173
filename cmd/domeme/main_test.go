package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckPriceRange(t *testing.T) {
	tests := []struct {
		name     string
		min, max int
		wantErr  string
	}{
		{name: "default min with open max", min: 12000, max: 0},
		{name: "both bounds", min: 12000, max: 30000},
		{name: "no bounds", min: 0, max: 0},
		{name: "max below default min", min: 12000, max: 10000, wantErr: "-min-price 12000 is above -max-price 10000"},
		{name: "negative min", min: -1, max: 0, wantErr: "negative"},
		{name: "negative max", min: 0, max: -5, wantErr: "negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkPriceRange(tt.min, tt.max)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
