package riot

import "strings"

// Platform-to-routing mapping for the regional match-v5 and account-v1 hosts.
var platformRouting = map[string]string{
	"na1":  "americas",
	"br1":  "americas",
	"la1":  "americas",
	"la2":  "americas",
	"oc1":  "americas",
	"euw1": "europe",
	"eun1": "europe",
	"tr1":  "europe",
	"ru":   "europe",
	"me1":  "europe",
	"kr":   "asia",
	"jp1":  "asia",
	"sg2":  "sea",
	"tw2":  "sea",
	"vn2":  "sea",
}

// RoutingRegion maps a platform region (na1, euw1, ...) to the regional
// cluster serving account-v1 and match-v5. Unknown platforms default to
// americas.
func RoutingRegion(platform string) string {
	if r, ok := platformRouting[strings.ToLower(platform)]; ok {
		return r
	}
	return "americas"
}

// MatchRouting derives the routing region from a match id, which embeds the
// platform as a prefix (e.g. "NA1_4830291842").
func MatchRouting(matchID string) string {
	platform, _, ok := strings.Cut(matchID, "_")
	if !ok {
		return "americas"
	}
	return RoutingRegion(platform)
}
