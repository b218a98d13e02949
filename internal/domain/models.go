package domain

import (
	"time"
)

type UploaderState string

const (
	UploaderIdle       UploaderState = "idle"
	UploaderProcessing UploaderState = "processing"
	UploaderOutOfOrder UploaderState = "out_of_order"
)

type Player struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Realm             string    `json:"realm"`
	Class             string    `json:"class"`
	Spec              string    `json:"spec"`
	Race              string    `json:"race"`
	Role              string    `json:"role"`
	AvatarURL         string    `json:"avatar_url"`
	ItemLevel         float64   `json:"item_level"`
	MythicScore       float64   `json:"mythic_score"`
	HighestKeyLevel   int       `json:"highest_key_level"`
	RankName          string    `json:"rank_name"`
	RankIndex         int       `json:"rank_index"`
	IsActive          bool      `json:"is_active"`
	LastSeen          string    `json:"last_seen"`
	LastSyncAt        time.Time `json:"last_sync_at"`
	TotalRuns         int       `json:"total_runs"`
	MostPlayedDungeon string    `json:"most_played_dungeon"`
	RunsInTime        int       `json:"runs_in_time"`
	RunsOverTime      int       `json:"runs_over_time"`
	RunsLow           int       `json:"runs_low"`
	RunsMid           int       `json:"runs_mid"`
	RunsHigh          int       `json:"runs_high"`
	RunsElite         int       `json:"runs_elite"`
	MessagesTotal     int       `json:"messages_total"`
	MessagesToday     int       `json:"messages_today"`
	LastMessage       string    `json:"last_message"`
	LastMessageAt     time.Time `json:"last_message_at"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Key returns the composite natural key ("Name-Realm") used everywhere an
// uploader payload or an upstream roster refers to a character.
func (p *Player) Key() string {
	return p.Name + "-" + p.Realm
}

type MythicRun struct {
	ID          string    `json:"id"`
	PlayerID    string    `json:"player_id"`
	Dungeon     string    `json:"dungeon"`
	KeyLevel    int       `json:"key_level"`
	Score       float64   `json:"score"`
	ClearTimeMs int64     `json:"clear_time_ms"`
	ParTimeMs   int64     `json:"par_time_ms"`
	InTime      bool      `json:"in_time"`
	CompletedAt time.Time `json:"completed_at"`
	RunURL      string    `json:"run_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type GuildMythicRun struct {
	ID          string    `json:"id"`
	RunKey      string    `json:"run_key"`
	Dungeon     string    `json:"dungeon"`
	KeyLevel    int       `json:"key_level"`
	ClearTimeMs int64     `json:"clear_time_ms"`
	InTime      bool      `json:"in_time"`
	Score       float64   `json:"score"`
	CompletedAt time.Time `json:"completed_at"`
	MemberCount int       `json:"member_count"`
	MemberIDs   []string  `json:"member_ids"`
	MemberNames []string  `json:"member_names"`
	CreatedAt   time.Time `json:"created_at"`
}

type ActivityEvent struct {
	ID          string    `json:"id"`
	PlayerID    string    `json:"player_id"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type ActivitySnapshot struct {
	ID          string    `json:"id"`
	SampleDate  string    `json:"sample_date"` // YYYY-MM-DD
	DayOfWeek   int       `json:"day_of_week"` // 0 = Monday
	HourOfDay   int       `json:"hour_of_day"`
	OnlineCount int       `json:"online_count"`
	SampledAt   time.Time `json:"sampled_at"`
}

type UploaderStatus struct {
	UploaderID      string        `json:"uploader_id"`
	State           UploaderState `json:"state"`
	SessionID       string        `json:"session_id"`
	LastBatchIndex  int           `json:"last_batch_index"`
	ExpectedIndex   int           `json:"expected_index"`
	ReceivedIndex   int           `json:"received_index"`
	LastError       string        `json:"last_error"`
	LastHeartbeatAt time.Time     `json:"last_heartbeat_at"`
	LastCompletedAt time.Time     `json:"last_completed_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

type RaidProgress struct {
	ID           string    `json:"id"`
	RaidName     string    `json:"raid_name"`
	Difficulty   string    `json:"difficulty"`
	BossesKilled int       `json:"bosses_killed"`
	BossesTotal  int       `json:"bosses_total"`
	LastKillAt   time.Time `json:"last_kill_at"`
	ReportCode   string    `json:"report_code"`
	UpdatedAt    time.Time `json:"updated_at"`
}
