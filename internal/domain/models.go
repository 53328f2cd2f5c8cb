package domain

import (
	"time"
)

type JobStatus string

const (
	JobPending    JobStatus = "PENDING"
	JobProcessing JobStatus = "PROCESSING"
	JobComplete   JobStatus = "COMPLETE"
	JobError      JobStatus = "ERROR"
)

// PlayerJob tracks one player's match-history ingestion for one year.
// TotalMatches counts matches that go through the queue; matches already
// cached at discovery time are reported separately in CachedMatches, so
// Status == JobComplete always implies ProcessedMatches == TotalMatches.
type PlayerJob struct {
	JobID            string // nanoid, used to resume a stream
	Puuid            string
	Year             int
	GameName         string
	TagLine          string
	Region           string // platform region, e.g. "na1"
	Status           JobStatus
	TotalMatches     int
	CachedMatches    int
	QueuedMatches    int
	ProcessedMatches int
	ErrorMessage     string
	LastUpdated      time.Time
	TTL              time.Time
}

type CachedMatch struct {
	Puuid     string
	MatchID   string
	Region    string
	Body      []byte // raw match-v5 JSON, written once, never mutated
	FetchedAt time.Time
}

type ChampionRecap struct {
	Puuid       string
	Year        int
	Stats       RecapStats
	Version     int
	ContentHash string
	LastUpdated time.Time
	TTL         time.Time
}

type RecapStats struct {
	Games         int            `json:"games"`
	Wins          int            `json:"wins"`
	WinRate       float64        `json:"winRate"`
	TopChampion   string         `json:"topChampion"`
	TopChampions  []ChampionStat `json:"topChampions"`
	FavoriteAlly  []RoleAlly     `json:"favoriteAllies"`
	Nemeses       []LaneNemesis  `json:"nemeses"`
	WorstEnemies  []RoleEnemy    `json:"worstEnemies"`
	RecentMatches []RecentMatch  `json:"recentMatches"`
}

type ChampionStat struct {
	Champion string  `json:"champion"`
	Games    int     `json:"games"`
	Wins     int     `json:"wins"`
	WinRate  float64 `json:"winRate"`
}

type RoleAlly struct {
	Role     string  `json:"role"`
	Champion string  `json:"champion"`
	Games    int     `json:"games"`
	Wins     int     `json:"wins"`
	WinRate  float64 `json:"winRate"`
}

type LaneNemesis struct {
	Champion string  `json:"champion"`
	Games    int     `json:"games"`
	Losses   int     `json:"losses"`
	LossRate float64 `json:"lossRate"`
}

type RoleEnemy struct {
	Role     string  `json:"role"`
	Champion string  `json:"champion"`
	Games    int     `json:"games"`
	Losses   int     `json:"losses"`
	LossRate float64 `json:"lossRate"`
}

type RecentMatch struct {
	MatchID      string    `json:"matchId"`
	Champion     string    `json:"champion"`
	Win          bool      `json:"win"`
	Kills        int       `json:"kills"`
	Deaths       int       `json:"deaths"`
	Assists      int       `json:"assists"`
	Position     string    `json:"position"`
	GameCreation time.Time `json:"gameCreation"`
}

type SessionStatus string

const (
	SessionActive       SessionStatus = "active"
	SessionCompleted    SessionStatus = "completed"
	SessionDisconnected SessionStatus = "disconnected"
	SessionFailed       SessionStatus = "failed"
)

// CoachingSession is the downstream consumer's window into a player's match
// list. LastMatchIndexSent advances only through the consumer's ack path;
// the aggregator reads it to compute the delta slice.
type CoachingSession struct {
	SessionID           string
	Puuid               string
	ChampionPersonality string
	ConnectionID        string
	Status              SessionStatus
	TotalMatches        int
	LastMatchIndexSent  int
	CreatedAt           time.Time
	UpdatedAt           time.Time
	TTL                 time.Time
}

// MatchFeature is the flattened per-match record sent to the coaching
// consumer.
type MatchFeature struct {
	MatchID           string  `json:"matchId"`
	Champion          string  `json:"champion"`
	Win               bool    `json:"win"`
	Kills             int     `json:"kills"`
	Deaths            int     `json:"deaths"`
	Assists           int     `json:"assists"`
	Position          string  `json:"position"`
	CS                int     `json:"cs"`
	CSPerMin          float64 `json:"csPerMin"`
	Gold              int     `json:"gold"`
	VisionScore       int     `json:"visionScore"`
	DamageDealt       int     `json:"damageDealt"`
	DamageTaken       int     `json:"damageTaken"`
	DamageShare       float64 `json:"damageShare"`
	KillParticipation float64 `json:"killParticipation"`
	FirstBlood        bool    `json:"firstBlood"`
	DurationSeconds   int     `json:"durationSeconds"`
	GameCreation      int64   `json:"gameCreation"`
}

// CoachingPayload is the fire-and-forget invocation body for the downstream
// coaching consumer.
type CoachingPayload struct {
	SessionID             string         `json:"sessionId"`
	Puuid                 string         `json:"puuid"`
	TopChampion           string         `json:"topChampion"`
	Matches               []MatchFeature `json:"matches"`
	LastMatchIndexSent    int            `json:"lastMatchIndexSent"`
	NewLastMatchIndexSent int            `json:"newLastMatchIndexSent"`
	ConnectionID          string         `json:"connectionId,omitempty"`
}
