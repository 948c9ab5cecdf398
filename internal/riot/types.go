package riot

// Account is the account-v1 response.
type Account struct {
	PUUID    string `json:"puuid"`
	GameName string `json:"gameName"`
	TagLine  string `json:"tagLine"`
}

// MatchDetail is the subset of match-v5 the summaries need.
type MatchDetail struct {
	Metadata MatchMetadata `json:"metadata"`
	Info     MatchInfo     `json:"info"`
}

type MatchMetadata struct {
	MatchID      string   `json:"matchId"`
	Participants []string `json:"participants"`
}

type MatchInfo struct {
	GameCreation     int64         `json:"gameCreation"`
	GameDuration     int64         `json:"gameDuration"` // seconds
	GameEndTimestamp int64         `json:"gameEndTimestamp"`
	GameMode         string        `json:"gameMode"`
	QueueID          int           `json:"queueId"`
	Participants     []Participant `json:"participants"`
}

type Participant struct {
	PUUID                       string      `json:"puuid"`
	RiotIDGameName              string      `json:"riotIdGameName"`
	RiotIDTagline               string      `json:"riotIdTagline"`
	ChampionID                  int         `json:"championId"`
	ChampionName                string      `json:"championName"`
	TeamID                      int         `json:"teamId"`
	Win                         bool        `json:"win"`
	Kills                       int         `json:"kills"`
	Deaths                      int         `json:"deaths"`
	Assists                     int         `json:"assists"`
	LargestMultiKill            int         `json:"largestMultiKill"`
	TotalMinionsKilled          int         `json:"totalMinionsKilled"`
	NeutralMinionsKilled        int         `json:"neutralMinionsKilled"`
	GoldEarned                  int         `json:"goldEarned"`
	TotalDamageDealtToChampions int         `json:"totalDamageDealtToChampions"`
	Challenges                  *Challenges `json:"challenges,omitempty"`
}

type Challenges struct {
	KillParticipation float64 `json:"killParticipation"`
}

// FindParticipant returns the participant with the given PUUID.
func (d *MatchDetail) FindParticipant(puuid string) (*Participant, bool) {
	if d == nil {
		return nil, false
	}
	for i := range d.Info.Participants {
		if d.Info.Participants[i].PUUID == puuid {
			return &d.Info.Participants[i], true
		}
	}
	return nil, false
}

// TeamKills sums kills of everyone on teamID.
func (d *MatchDetail) TeamKills(teamID int) int {
	total := 0
	for _, p := range d.Info.Participants {
		if p.TeamID == teamID {
			total += p.Kills
		}
	}
	return total
}

// ActiveGame is the spectator-v5 response.
type ActiveGame struct {
	GameID      int64  `json:"gameId"`
	GameMode    string `json:"gameMode"`
	GameQueueID int    `json:"gameQueueConfigId"`
	GameStartMS int64  `json:"gameStartTime"`
	GameLengthS int64  `json:"gameLength"`
	PlatformID  string `json:"platformId"`
}
