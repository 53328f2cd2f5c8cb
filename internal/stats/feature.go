package stats

import (
	"time"

	"rift-rewind/internal/domain"
	"rift-rewind/internal/riot"
)

// Flatten extracts the per-match feature record sent to the coaching
// consumer. The second return is false when the player is not in the match.
func Flatten(puuid string, match *riot.Match) (domain.MatchFeature, bool) {
	me := match.ParticipantByPuuid(puuid)
	if me == nil {
		return domain.MatchFeature{}, false
	}

	cs := me.TotalMinionsKilled + me.NeutralMinionsKilled
	minutes := float64(match.Info.GameDuration) / 60.0
	csPerMin := 0.0
	if minutes > 0 {
		csPerMin = float64(cs) / minutes
	}

	return domain.MatchFeature{
		MatchID:           match.Metadata.MatchID,
		Champion:          me.ChampionName,
		Win:               me.Win,
		Kills:             me.Kills,
		Deaths:            me.Deaths,
		Assists:           me.Assists,
		Position:          me.TeamPosition,
		CS:                cs,
		CSPerMin:          csPerMin,
		Gold:              me.GoldEarned,
		VisionScore:       me.VisionScore,
		DamageDealt:       me.TotalDamageDealtToChampions,
		DamageTaken:       me.TotalDamageTaken,
		DamageShare:       me.Challenges.TeamDamageShare,
		KillParticipation: me.Challenges.KillParticipation,
		FirstBlood:        me.FirstBloodKill,
		DurationSeconds:   int(match.Info.GameDuration),
		GameCreation:      match.Info.GameCreation,
	}, true
}

func millisToTime(ms int64) time.Time {
	return time.UnixMilli(ms)
}
