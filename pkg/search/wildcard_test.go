package search

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchWildcard(t *testing.T) {
	tests := []struct {
		pattern string
		value   string
		want    bool
	}{
		{"urn:dev*", "urn:dev:mac:fcc23d000000050f:temp", true},
		{"urn:dev:mac:fcc23d000000050f*temp", "urn:dev:mac:fcc23d000000050f:temp", true},
		{"urn:dev:mac:fcc23d000000050f*temp", "urn:dev:mac:fcc23d000000050f:humidity", false},
		{"urn:dev:mac:fcc23d000000050f*temp", "urn:dev:mac:aaaa:temp", false},
		{"urn:dev*WiFi:ESSID", "urn:dev:mac:1:WiFi:ESSID", true},
		{"measurements-*", "measurements-2019-03-28", true},
		{"measurements-2019-03-2?", "measurements-2019-03-28", true},
		{"measurements-2019-03-2?", "measurements-2019-03-3", false},
		{"*", "", true},
		{"", "", true},
		{"a*b*c", "axxbyyc", true},
		{"a*b*c", "axxbyy", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, MatchWildcard(tt.pattern, tt.value), "%q ~ %q", tt.pattern, tt.value)
	}
}

func TestMatchFieldAnalyzed(t *testing.T) {
	assert.True(t, MatchField("n", "temp", "urn:dev:mac:fcc23d000000050f:temp"))
	assert.True(t, MatchField("n", "TEMP", "urn:dev:mac:fcc23d000000050f:temp"))
	assert.False(t, MatchField("n", "temp", "urn:dev:mac:fcc23d000000050f:temperature"))
	assert.True(t, MatchField("n", "pm2_5", "urn:dev:mac:1:pm2_5"))

	// keyword matches the whole value only
	assert.False(t, MatchField("n.keyword", "temp", "urn:dev:mac:1:temp"))
	assert.True(t, MatchField("n.keyword", "*temp", "urn:dev:mac:1:temp"))
}

func TestWildcardRegexp(t *testing.T) {
	keyword := regexp.MustCompile(WildcardRegexp("n.keyword", "urn:dev:mac:1*temp"))
	assert.True(t, keyword.MatchString("urn:dev:mac:1:temp"))
	assert.False(t, keyword.MatchString("xurn:dev:mac:1:temp"))
	assert.False(t, keyword.MatchString("urn:dev:mac:1:temp:x"))

	analyzed := regexp.MustCompile("(?i)" + WildcardRegexp("n", "humidity"))
	assert.True(t, analyzed.MatchString("urn:dev:mac:1:humidity"))
	assert.True(t, analyzed.MatchString("urn:dev:mac:1:HUMIDITY"))
	assert.False(t, analyzed.MatchString("urn:dev:mac:1:humidity2"))

	quoted := regexp.MustCompile(WildcardRegexp("n.keyword", "a.b*"))
	assert.False(t, quoted.MatchString("axb"))
}
