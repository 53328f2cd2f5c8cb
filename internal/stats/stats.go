// Package stats derives champion aggregates from raw match records. All
// functions are pure; persistence and fetching live elsewhere.
package stats

import (
	"sort"

	"rift-rewind/internal/constants"
	"rift-rewind/internal/domain"
	"rift-rewind/internal/riot"
)

type tally struct {
	champion string
	role     string
	games    int
	wins     int
	losses   int
	order    int // insertion order, breaks ties deterministically
}

func (t *tally) winRate() float64 {
	if t.games == 0 {
		return 0
	}
	return float64(t.wins) / float64(t.games)
}

func (t *tally) lossRate() float64 {
	if t.games == 0 {
		return 0
	}
	return float64(t.losses) / float64(t.games)
}

// Compute recomputes the full aggregate from every cached match. Matches
// the player did not participate in are skipped.
func Compute(puuid string, matches []*riot.Match) domain.RecapStats {
	champions := map[string]*tally{}
	allies := map[[2]string]*tally{}
	laneOpponents := map[string]*tally{}
	enemies := map[[2]string]*tally{}
	var recent []domain.RecentMatch

	games, wins, order := 0, 0, 0

	record := func(m map[string]*tally, key string, role string, won, lost bool) {
		t, ok := m[key]
		if !ok {
			t = &tally{champion: key, role: role, order: order}
			order++
			m[key] = t
		}
		t.games++
		if won {
			t.wins++
		}
		if lost {
			t.losses++
		}
	}
	recordRoled := func(m map[[2]string]*tally, role, champion string, won, lost bool) {
		key := [2]string{role, champion}
		t, ok := m[key]
		if !ok {
			t = &tally{champion: champion, role: role, order: order}
			order++
			m[key] = t
		}
		t.games++
		if won {
			t.wins++
		}
		if lost {
			t.losses++
		}
	}

	for _, match := range matches {
		me := match.ParticipantByPuuid(puuid)
		if me == nil {
			continue
		}

		games++
		if me.Win {
			wins++
		}

		record(champions, me.ChampionName, me.TeamPosition, me.Win, !me.Win)

		for i := range match.Info.Participants {
			p := &match.Info.Participants[i]
			if p.Puuid == puuid {
				continue
			}
			if p.TeamID == me.TeamID {
				recordRoled(allies, p.TeamPosition, p.ChampionName, me.Win, !me.Win)
				continue
			}
			recordRoled(enemies, p.TeamPosition, p.ChampionName, me.Win, !me.Win)
			if p.TeamPosition != "" && p.TeamPosition == me.TeamPosition {
				record(laneOpponents, p.ChampionName, p.TeamPosition, me.Win, !me.Win)
			}
		}

		recent = append(recent, domain.RecentMatch{
			MatchID:      match.Metadata.MatchID,
			Champion:     me.ChampionName,
			Win:          me.Win,
			Kills:        me.Kills,
			Deaths:       me.Deaths,
			Assists:      me.Assists,
			Position:     me.TeamPosition,
			GameCreation: millisToTime(match.Info.GameCreation),
		})
	}

	out := domain.RecapStats{
		Games:         games,
		Wins:          wins,
		TopChampions:  topChampions(champions),
		FavoriteAlly:  bestAllies(allies),
		Nemeses:       topNemeses(laneOpponents),
		WorstEnemies:  worstEnemies(enemies),
		RecentMatches: recentMatches(recent),
	}
	if games > 0 {
		out.WinRate = float64(wins) / float64(games)
	}
	if len(out.TopChampions) > 0 {
		out.TopChampion = out.TopChampions[0].Champion
	}
	return out
}

func topChampions(champions map[string]*tally) []domain.ChampionStat {
	sorted := sortTallies(champions, func(a, b *tally) bool {
		if a.games != b.games {
			return a.games > b.games
		}
		return a.order < b.order
	})

	limit := constants.TopChampionLimit
	if len(sorted) < limit {
		limit = len(sorted)
	}
	out := make([]domain.ChampionStat, 0, limit)
	for _, t := range sorted[:limit] {
		out = append(out, domain.ChampionStat{
			Champion: t.champion,
			Games:    t.games,
			Wins:     t.wins,
			WinRate:  t.winRate(),
		})
	}
	return out
}

// bestAllies picks one ally champion per role: minimum game count, then win
// rate, then volume.
func bestAllies(allies map[[2]string]*tally) []domain.RoleAlly {
	best := map[string]*tally{}
	for _, t := range allies {
		if t.games < constants.MinGamesThreshold || t.role == "" {
			continue
		}
		cur, ok := best[t.role]
		if !ok || betterAlly(t, cur) {
			best[t.role] = t
		}
	}

	out := make([]domain.RoleAlly, 0, len(best))
	for role, t := range best {
		out = append(out, domain.RoleAlly{
			Role:     role,
			Champion: t.champion,
			Games:    t.games,
			Wins:     t.wins,
			WinRate:  t.winRate(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Role < out[j].Role })
	return out
}

func betterAlly(a, b *tally) bool {
	if a.winRate() != b.winRate() {
		return a.winRate() > b.winRate()
	}
	if a.games != b.games {
		return a.games > b.games
	}
	return a.order < b.order
}

// topNemeses ranks lane opponents by absolute loss count, then loss rate.
func topNemeses(laneOpponents map[string]*tally) []domain.LaneNemesis {
	sorted := sortTallies(laneOpponents, func(a, b *tally) bool {
		if a.losses != b.losses {
			return a.losses > b.losses
		}
		if a.lossRate() != b.lossRate() {
			return a.lossRate() > b.lossRate()
		}
		return a.order < b.order
	})

	var out []domain.LaneNemesis
	for _, t := range sorted {
		if t.games < constants.MinGamesThreshold || t.losses == 0 {
			continue
		}
		out = append(out, domain.LaneNemesis{
			Champion: t.champion,
			Games:    t.games,
			Losses:   t.losses,
			LossRate: t.lossRate(),
		})
		if len(out) == constants.NemesisLimit {
			break
		}
	}
	return out
}

func worstEnemies(enemies map[[2]string]*tally) []domain.RoleEnemy {
	worst := map[string]*tally{}
	for _, t := range enemies {
		if t.games < constants.MinGamesThreshold || t.role == "" || t.losses == 0 {
			continue
		}
		cur, ok := worst[t.role]
		if !ok || worseEnemy(t, cur) {
			worst[t.role] = t
		}
	}

	out := make([]domain.RoleEnemy, 0, len(worst))
	for role, t := range worst {
		out = append(out, domain.RoleEnemy{
			Role:     role,
			Champion: t.champion,
			Games:    t.games,
			Losses:   t.losses,
			LossRate: t.lossRate(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Role < out[j].Role })
	return out
}

func worseEnemy(a, b *tally) bool {
	if a.losses != b.losses {
		return a.losses > b.losses
	}
	if a.lossRate() != b.lossRate() {
		return a.lossRate() > b.lossRate()
	}
	return a.order < b.order
}

func recentMatches(recent []domain.RecentMatch) []domain.RecentMatch {
	sort.Slice(recent, func(i, j int) bool {
		return recent[i].GameCreation.After(recent[j].GameCreation)
	})
	if len(recent) > constants.RecentMatchLimit {
		recent = recent[:constants.RecentMatchLimit]
	}
	return recent
}

func sortTallies(m map[string]*tally, less func(a, b *tally) bool) []*tally {
	out := make([]*tally, 0, len(m))
	for _, t := range m {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}
