package riot

type Account struct {
	Puuid    string `json:"puuid"`
	GameName string `json:"gameName"`
	TagLine  string `json:"tagLine"`
}

type Match struct {
	Metadata MatchMetadata `json:"metadata"`
	Info     MatchInfo     `json:"info"`
}

type MatchMetadata struct {
	MatchID      string   `json:"matchId"`
	Participants []string `json:"participants"`
}

type MatchInfo struct {
	GameCreation int64         `json:"gameCreation"`
	GameDuration int64         `json:"gameDuration"`
	GameMode     string        `json:"gameMode"`
	QueueID      int           `json:"queueId"`
	Participants []Participant `json:"participants"`
}

type Participant struct {
	Puuid                       string     `json:"puuid"`
	ChampionName                string     `json:"championName"`
	TeamID                      int        `json:"teamId"`
	TeamPosition                string     `json:"teamPosition"`
	Win                         bool       `json:"win"`
	Kills                       int        `json:"kills"`
	Deaths                      int        `json:"deaths"`
	Assists                     int        `json:"assists"`
	TotalMinionsKilled          int        `json:"totalMinionsKilled"`
	NeutralMinionsKilled        int        `json:"neutralMinionsKilled"`
	GoldEarned                  int        `json:"goldEarned"`
	VisionScore                 int        `json:"visionScore"`
	TotalDamageDealtToChampions int        `json:"totalDamageDealtToChampions"`
	TotalDamageTaken            int        `json:"totalDamageTaken"`
	FirstBloodKill              bool       `json:"firstBloodKill"`
	Challenges                  Challenges `json:"challenges"`
}

type Challenges struct {
	KillParticipation float64 `json:"killParticipation"`
	TeamDamageShare   float64 `json:"teamDamagePercentage"`
}

// ParticipantByPuuid returns the player's own participation record, or nil
// when the player is not in the match.
func (m *Match) ParticipantByPuuid(puuid string) *Participant {
	for i := range m.Info.Participants {
		if m.Info.Participants[i].Puuid == puuid {
			return &m.Info.Participants[i]
		}
	}
	return nil
}
