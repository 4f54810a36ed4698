package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	valid := PathQuery{Starts: []string{"file"}, End: "end", MinHops: 1, MaxHops: 3}

	tests := []struct {
		name    string
		query   Query
		wantErr string
	}{
		{"valid path", valid, ""},
		{"valid pointer", &valid, ""},
		{"valid edges", EdgesByID{IDs: []int64{1}}, ""},
		{"nil", nil, "nil query"},
		{"no starts", PathQuery{End: "end", MinHops: 1, MaxHops: 1}, "at least one start"},
		{"empty start", PathQuery{Starts: []string{""}, End: "end", MinHops: 1, MaxHops: 1}, "empty start"},
		{"start is end", PathQuery{Starts: []string{"end"}, End: "end", MinHops: 1, MaxHops: 1}, "equals end"},
		{"no end", PathQuery{Starts: []string{"file"}, MinHops: 1, MaxHops: 1}, "end node required"},
		{"zero min", PathQuery{Starts: []string{"file"}, End: "end", MaxHops: 1}, "min hops"},
		{"inverted", PathQuery{Starts: []string{"file"}, End: "end", MinHops: 3, MaxHops: 2}, "below min hops"},
		{"too long", PathQuery{Starts: []string{"file"}, End: "end", MinHops: 1, MaxHops: MaxHopsLimit + 1}, "exceeds limit"},
		{"no ids", EdgesByID{}, "no ids"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.query)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
