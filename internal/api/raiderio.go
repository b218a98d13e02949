package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"guild-tracker/internal/config"
	"guild-tracker/internal/constants"

	"github.com/valyala/fasthttp"
)

// ErrNotFound marks upstream 404/400 responses: the character or guild does
// not exist (or the name is malformed) as far as Raider.IO is concerned.
var ErrNotFound = errors.New("not found upstream")

const (
	profileFields = "mythic_plus_scores_by_season:current,mythic_plus_best_runs,mythic_plus_recent_runs,gear"
	deepFields    = profileFields + ",mythic_plus_alternate_runs,mythic_plus_highest_level_runs"
)

type RaiderIOClient struct {
	baseURL string
	region  string
	client  *fasthttp.Client
}

func NewRaiderIOClient(cfg *config.Config) *RaiderIOClient {
	return &RaiderIOClient{
		baseURL: cfg.RaiderIOBaseURL,
		region:  cfg.Region,
		client: &fasthttp.Client{
			MaxConnsPerHost:     100,
			ReadTimeout:         constants.ExternalAPITimeout,
			WriteTimeout:        constants.ExternalAPITimeout,
			MaxIdleConnDuration: 1 * time.Minute,
		},
	}
}

func (c *RaiderIOClient) GetCharacterProfile(ctx context.Context, name, realm string, deep bool) (*CharacterProfile, error) {
	fields := profileFields
	if deep {
		fields = deepFields
	}
	params := url.Values{
		"region": {c.region},
		"realm":  {RealmSlug(realm)},
		"name":   {name},
		"fields": {fields},
	}
	return doRequest[CharacterProfile](ctx, c, "/api/v1/characters/profile", params)
}

func (c *RaiderIOClient) GetRunDetails(ctx context.Context, season string, runID int64) (*RunDetails, error) {
	params := url.Values{
		"season": {season},
		"id":     {fmt.Sprintf("%d", runID)},
	}
	return doRequest[RunDetails](ctx, c, "/api/v1/mythic-plus/run-details", params)
}

func (c *RaiderIOClient) GetGuildProfile(ctx context.Context, name, realm string) (*GuildProfile, error) {
	params := url.Values{
		"region": {c.region},
		"realm":  {RealmSlug(realm)},
		"name":   {name},
		"fields": {"members"},
	}
	return doRequest[GuildProfile](ctx, c, "/api/v1/guilds/profile", params)
}

// RealmSlug turns a display realm name into the Raider.IO URL slug:
// apostrophes and quotes dropped, spaces become hyphens, lowercased.
func RealmSlug(realm string) string {
	realm = strings.ReplaceAll(realm, "'", "")
	realm = strings.ReplaceAll(realm, "\"", "")
	realm = strings.ReplaceAll(realm, " ", "-")
	return strings.ToLower(realm)
}

func doRequest[T any](ctx context.Context, client *RaiderIOClient, path string, params url.Values) (*T, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(client.baseURL + path + "?" + params.Encode())
	req.Header.SetMethod(fasthttp.MethodGet)

	deadline, ok := ctx.Deadline()
	if ok {
		if err := client.client.DoDeadline(req, resp, deadline); err != nil {
			return nil, err
		}
	} else {
		if err := client.client.Do(req, resp); err != nil {
			return nil, err
		}
	}

	switch resp.StatusCode() {
	case fasthttp.StatusOK:
	case fasthttp.StatusNotFound, fasthttp.StatusBadRequest:
		return nil, fmt.Errorf("%w: %s (%d)", ErrNotFound, path, resp.StatusCode())
	default:
		return nil, fmt.Errorf("API error: %d", resp.StatusCode())
	}

	var result T
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

type CharacterProfile struct {
	Name              string `json:"name"`
	Race              string `json:"race"`
	Class             string `json:"class"`
	ActiveSpecName    string `json:"active_spec_name"`
	ActiveRole        string `json:"active_role"`
	ThumbnailURL      string `json:"thumbnail_url"`
	ProfileURL        string `json:"profile_url"`
	AchievementPoints int    `json:"achievement_points"`
	Gear              struct {
		ItemLevelEquipped float64 `json:"item_level_equipped"`
	} `json:"gear"`
	MythicPlusScoresBySeason []SeasonScores `json:"mythic_plus_scores_by_season"`
	MythicPlusRecentRuns     []Run          `json:"mythic_plus_recent_runs"`
	MythicPlusBestRuns       []Run          `json:"mythic_plus_best_runs"`
	MythicPlusAlternateRuns  []Run          `json:"mythic_plus_alternate_runs"`
	MythicPlusHighestRuns    []Run          `json:"mythic_plus_highest_level_runs"`
}

type SeasonScores struct {
	Season string `json:"season"`
	Scores struct {
		All float64 `json:"all"`
	} `json:"scores"`
}

func (p *CharacterProfile) CurrentScore() float64 {
	if len(p.MythicPlusScoresBySeason) == 0 {
		return 0
	}
	return p.MythicPlusScoresBySeason[0].Scores.All
}

type Run struct {
	Dungeon             string    `json:"dungeon"`
	ShortName           string    `json:"short_name"`
	MythicLevel         int       `json:"mythic_level"`
	CompletedAt         time.Time `json:"completed_at"`
	ClearTimeMs         int64     `json:"clear_time_ms"`
	ParTimeMs           int64     `json:"par_time_ms"`
	NumKeystoneUpgrades int       `json:"num_keystone_upgrades"`
	Score               float64   `json:"score"`
	URL                 string    `json:"url"`
}

type RunDetails struct {
	Season      string        `json:"season"`
	DungeonName string        `json:"dungeon_name"`
	MythicLevel int           `json:"mythic_level"`
	ClearTimeMs int64         `json:"clear_time_ms"`
	ParTimeMs   int64         `json:"keystone_time_ms"`
	CompletedAt time.Time     `json:"completed_at"`
	Score       float64       `json:"score"`
	Roster      []RosterEntry `json:"roster"`
}

type RosterEntry struct {
	Character struct {
		Name  string `json:"name"`
		Realm struct {
			Name string `json:"name"`
			Slug string `json:"slug"`
		} `json:"realm"`
		Class struct {
			Name string `json:"name"`
		} `json:"class"`
		Spec struct {
			Name string `json:"name"`
			Role string `json:"role"`
		} `json:"spec"`
	} `json:"character"`
}

type GuildProfile struct {
	Name    string `json:"name"`
	Realm   string `json:"realm"`
	Region  string `json:"region"`
	Members []struct {
		Rank      int `json:"rank"`
		Character struct {
			Name  string `json:"name"`
			Realm string `json:"realm"`
			Class string `json:"class"`
		} `json:"character"`
	} `json:"members"`
}
