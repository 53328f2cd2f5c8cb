package riot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoutingRegion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		platform string
		want     string
	}{
		{"na1", "americas"},
		{"NA1", "americas"},
		{"euw1", "europe"},
		{"kr", "asia"},
		{"sg2", "sea"},
		{"unknown", "americas"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, RoutingRegion(tt.platform), "platform %s", tt.platform)
	}
}

func TestMatchRouting(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "americas", MatchRouting("NA1_4830291842"))
	assert.Equal(t, "europe", MatchRouting("EUW1_7000000001"))
	assert.Equal(t, "asia", MatchRouting("KR_6612345678"))
	assert.Equal(t, "americas", MatchRouting("garbage"))
}
