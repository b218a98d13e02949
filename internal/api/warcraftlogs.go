package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"guild-tracker/internal/config"

	"golang.org/x/oauth2/clientcredentials"
)

// WarcraftLogsClient speaks the combat-log analytics GraphQL API. The
// client-credentials token is cached by the oauth2 transport and refreshed
// near expiry.
type WarcraftLogsClient struct {
	baseURL string
	client  *http.Client
}

func NewWarcraftLogsClient(cfg *config.Config) *WarcraftLogsClient {
	creds := clientcredentials.Config{
		ClientID:     cfg.WarcraftLogsClientID,
		ClientSecret: cfg.WarcraftLogsClientSecret,
		TokenURL:     cfg.WarcraftLogsTokenURL,
	}

	return &WarcraftLogsClient{
		baseURL: cfg.WarcraftLogsBaseURL,
		client:  creds.Client(context.Background()),
	}
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

func (c *WarcraftLogsClient) query(ctx context.Context, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("failed to marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v2/client", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("graphql request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphqlError  `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode graphql response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		return fmt.Errorf("graphql error: %s", envelope.Errors[0].Message)
	}
	return json.Unmarshal(envelope.Data, out)
}

type WCLGuild struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func (c *WarcraftLogsClient) GetGuild(ctx context.Context, name, realm, region string) (*WCLGuild, error) {
	const q = `query($name: String!, $realm: String!, $region: String!) {
		guildData { guild(name: $name, serverSlug: $realm, serverRegion: $region) { id name } }
	}`

	var out struct {
		GuildData struct {
			Guild *WCLGuild `json:"guild"`
		} `json:"guildData"`
	}
	err := c.query(ctx, q, map[string]any{
		"name": name, "realm": RealmSlug(realm), "region": region,
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.GuildData.Guild == nil {
		return nil, fmt.Errorf("%w: guild %s", ErrNotFound, name)
	}
	return out.GuildData.Guild, nil
}

type WCLReport struct {
	Code      string  `json:"code"`
	Title     string  `json:"title"`
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
	Zone      struct {
		Name       string `json:"name"`
		Encounters []struct {
			ID int `json:"id"`
		} `json:"encounters"`
	} `json:"zone"`
}

func (c *WarcraftLogsClient) GetReports(ctx context.Context, guildID, limit int) ([]WCLReport, error) {
	const q = `query($guildID: Int!, $limit: Int!) {
		reportData { reports(guildID: $guildID, limit: $limit) {
			data { code title startTime endTime zone { name encounters { id } } }
		} }
	}`

	var out struct {
		ReportData struct {
			Reports struct {
				Data []WCLReport `json:"data"`
			} `json:"reports"`
		} `json:"reportData"`
	}
	err := c.query(ctx, q, map[string]any{"guildID": guildID, "limit": limit}, &out)
	if err != nil {
		return nil, err
	}
	return out.ReportData.Reports.Data, nil
}

type WCLFight struct {
	ID         int     `json:"id"`
	Name       string  `json:"name"`
	Difficulty int     `json:"difficulty"`
	Kill       bool    `json:"kill"`
	EndTime    float64 `json:"endTime"`
}

func (c *WarcraftLogsClient) GetFights(ctx context.Context, reportCode string) ([]WCLFight, error) {
	const q = `query($code: String!) {
		reportData { report(code: $code) {
			fights(killType: Encounters) { id name difficulty kill endTime }
		} }
	}`

	var out struct {
		ReportData struct {
			Report struct {
				Fights []WCLFight `json:"fights"`
			} `json:"report"`
		} `json:"reportData"`
	}
	err := c.query(ctx, q, map[string]any{"code": reportCode}, &out)
	if err != nil {
		return nil, err
	}
	return out.ReportData.Report.Fights, nil
}

// DifficultyName maps the combat-log numeric difficulty to the label stored
// in raid_progress.
func DifficultyName(d int) string {
	switch d {
	case 5:
		return "Mythic"
	case 4:
		return "Heroic"
	case 3:
		return "Normal"
	case 1:
		return "LFR"
	default:
		return fmt.Sprintf("Unknown (%d)", d)
	}
}

// ReportTime converts the API's epoch-millisecond floats.
func ReportTime(ms float64) time.Time {
	return time.UnixMilli(int64(ms)).UTC()
}
