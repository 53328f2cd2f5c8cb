package stats

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rift-rewind/internal/riot"
)

const me = "puuid-me"

// buildMatch produces a minimal two-per-side match: the player mid on team
// 100 with a jungle ally, opposed by a mid and a jungler on team 200.
func buildMatch(seq int, champion string, win bool, laneOpponent string) *riot.Match {
	return &riot.Match{
		Metadata: riot.MatchMetadata{MatchID: fmt.Sprintf("NA1_%03d", seq)},
		Info: riot.MatchInfo{
			GameCreation: int64(seq) * 1000,
			GameDuration: 1800,
			Participants: []riot.Participant{
				{
					Puuid: me, ChampionName: champion, TeamID: 100, TeamPosition: "MIDDLE",
					Win: win, Kills: 5, Deaths: 2, Assists: 7,
					TotalMinionsKilled: 180, NeutralMinionsKilled: 20,
					GoldEarned: 12000, VisionScore: 25,
					TotalDamageDealtToChampions: 21000, TotalDamageTaken: 18000,
					FirstBloodKill: seq == 1,
					Challenges:     riot.Challenges{KillParticipation: 0.55, TeamDamageShare: 0.31},
				},
				{Puuid: "ally-1", ChampionName: "LeeSin", TeamID: 100, TeamPosition: "JUNGLE", Win: win},
				{Puuid: "enemy-1", ChampionName: laneOpponent, TeamID: 200, TeamPosition: "MIDDLE", Win: !win},
				{Puuid: "enemy-2", ChampionName: "Elise", TeamID: 200, TeamPosition: "JUNGLE", Win: !win},
			},
		},
	}
}

func TestComputeAggregates(t *testing.T) {
	t.Parallel()

	matches := []*riot.Match{
		buildMatch(1, "Ahri", true, "Zed"),
		buildMatch(2, "Ahri", true, "Zed"),
		buildMatch(3, "Ahri", true, "Zed"),
		buildMatch(4, "Ahri", false, "Zed"),
		buildMatch(5, "Lux", false, "Zed"),
	}

	got := Compute(me, matches)

	assert.Equal(t, 5, got.Games)
	assert.Equal(t, 3, got.Wins)
	assert.InDelta(t, 0.6, got.WinRate, 1e-9)
	assert.Equal(t, "Ahri", got.TopChampion)

	require.Len(t, got.TopChampions, 2)
	assert.Equal(t, "Ahri", got.TopChampions[0].Champion)
	assert.Equal(t, 4, got.TopChampions[0].Games)
	assert.Equal(t, 3, got.TopChampions[0].Wins)
	assert.Equal(t, "Lux", got.TopChampions[1].Champion)

	require.Len(t, got.FavoriteAlly, 1)
	assert.Equal(t, "JUNGLE", got.FavoriteAlly[0].Role)
	assert.Equal(t, "LeeSin", got.FavoriteAlly[0].Champion)
	assert.Equal(t, 5, got.FavoriteAlly[0].Games)
	assert.InDelta(t, 0.6, got.FavoriteAlly[0].WinRate, 1e-9)

	require.Len(t, got.Nemeses, 1)
	assert.Equal(t, "Zed", got.Nemeses[0].Champion)
	assert.Equal(t, 5, got.Nemeses[0].Games)
	assert.Equal(t, 2, got.Nemeses[0].Losses)

	// Worst enemies come back one per role in role order.
	require.Len(t, got.WorstEnemies, 2)
	assert.Equal(t, "JUNGLE", got.WorstEnemies[0].Role)
	assert.Equal(t, "Elise", got.WorstEnemies[0].Champion)
	assert.Equal(t, "MIDDLE", got.WorstEnemies[1].Role)
	assert.Equal(t, "Zed", got.WorstEnemies[1].Champion)

	// Recent matches are newest first.
	require.Len(t, got.RecentMatches, 5)
	assert.Equal(t, "NA1_005", got.RecentMatches[0].MatchID)
	assert.Equal(t, "NA1_001", got.RecentMatches[4].MatchID)
}

func TestComputeSkipsForeignMatches(t *testing.T) {
	t.Parallel()

	foreign := buildMatch(1, "Ahri", true, "Zed")
	foreign.Info.Participants = foreign.Info.Participants[1:]

	got := Compute(me, []*riot.Match{foreign, buildMatch(2, "Ahri", true, "Zed")})
	assert.Equal(t, 1, got.Games)
	assert.Equal(t, 1, got.Wins)
}

func TestComputeBelowThresholdOpponentsExcluded(t *testing.T) {
	t.Parallel()

	// Two games against Syndra is under the minimum sample, so she must not
	// show up as a nemesis even with a 100% loss rate.
	matches := []*riot.Match{
		buildMatch(1, "Ahri", false, "Syndra"),
		buildMatch(2, "Ahri", false, "Syndra"),
	}

	got := Compute(me, matches)
	assert.Empty(t, got.Nemeses)
	assert.Empty(t, got.WorstEnemies)
	assert.Empty(t, got.FavoriteAlly)
}

func TestComputeEmpty(t *testing.T) {
	t.Parallel()

	got := Compute(me, nil)
	assert.Zero(t, got.Games)
	assert.Zero(t, got.WinRate)
	assert.Empty(t, got.TopChampion)
	assert.Empty(t, got.RecentMatches)
}

func TestNemesisRankedByLosses(t *testing.T) {
	t.Parallel()

	var matches []*riot.Match
	seq := 0
	add := func(opponent string, win bool) {
		seq++
		matches = append(matches, buildMatch(seq, "Ahri", win, opponent))
	}

	// Zed: 4 games, 3 losses. Syndra: 4 games, 2 losses. Yasuo: 3 games, 0 losses.
	add("Zed", false)
	add("Zed", false)
	add("Zed", false)
	add("Zed", true)
	add("Syndra", false)
	add("Syndra", false)
	add("Syndra", true)
	add("Syndra", true)
	add("Yasuo", true)
	add("Yasuo", true)
	add("Yasuo", true)

	got := Compute(me, matches)

	require.Len(t, got.Nemeses, 2)
	assert.Equal(t, "Zed", got.Nemeses[0].Champion)
	assert.Equal(t, 3, got.Nemeses[0].Losses)
	assert.Equal(t, "Syndra", got.Nemeses[1].Champion)
	assert.Equal(t, 2, got.Nemeses[1].Losses)
}

func TestFlattenFeature(t *testing.T) {
	t.Parallel()

	match := buildMatch(1, "Ahri", true, "Zed")

	feature, ok := Flatten(me, match)
	require.True(t, ok)
	assert.Equal(t, "NA1_001", feature.MatchID)
	assert.Equal(t, "Ahri", feature.Champion)
	assert.True(t, feature.Win)
	assert.Equal(t, 200, feature.CS)
	assert.InDelta(t, 200.0/30.0, feature.CSPerMin, 1e-9)
	assert.InDelta(t, 0.31, feature.DamageShare, 1e-9)
	assert.True(t, feature.FirstBlood)
	assert.Equal(t, 1800, feature.DurationSeconds)

	_, ok = Flatten("someone-else", match)
	assert.False(t, ok)
}
