package tui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fentz26/dosekeeper/internal/controlplane"
	"github.com/fentz26/dosekeeper/internal/models"
	"github.com/fentz26/dosekeeper/internal/reminder"
)

// DefaultClientTimeout is the default timeout for API requests.
const DefaultClientTimeout = 10 * time.Second

// Client wraps HTTP calls to the dosekeeper API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client with timeout
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultClientTimeout,
		},
	}
}

// ListMedications fetches medications filtered by lifecycle status.
func (c *Client) ListMedications(status string) ([]controlplane.MedicationView, error) {
	path := "/medications"
	if status != "" {
		path += "?status=" + status
	}
	var meds []controlplane.MedicationView
	if err := c.get(path, &meds); err != nil {
		return nil, err
	}
	return meds, nil
}

// ActiveReminder returns the current reminder, or nil when none is active.
func (c *Client) ActiveReminder() (*controlplane.ReminderView, error) {
	var rem controlplane.ReminderView
	found, err := c.do(http.MethodGet, "/reminder", nil, &rem)
	if err != nil || !found {
		return nil, err
	}
	return &rem, nil
}

// Resolve answers the active reminder for medicationID.
func (c *Client) Resolve(action reminder.Action, medicationID string) (reminder.Outcome, error) {
	var out reminder.Outcome
	_, err := c.do(http.MethodPost, "/reminder/"+string(action), map[string]string{"medication_id": medicationID}, &out)
	return out, err
}

// LogDose records a dose taken now.
func (c *Client) LogDose(medicationID string) (reminder.Outcome, error) {
	var out reminder.Outcome
	_, err := c.do(http.MethodPost, "/medications/"+medicationID+"/dose", nil, &out)
	return out, err
}

// CreateMedication adds a medication.
func (c *Client) CreateMedication(p models.MedicationPatch) (*models.Medication, error) {
	var med models.Medication
	if _, err := c.do(http.MethodPost, "/medications", p, &med); err != nil {
		return nil, err
	}
	return &med, nil
}

// Archive soft-deletes a medication.
func (c *Client) Archive(medicationID string) (*models.Medication, error) {
	return c.lifecycle(medicationID, "archive")
}

// Restore brings an archived medication back.
func (c *Client) Restore(medicationID string) (*models.Medication, error) {
	return c.lifecycle(medicationID, "restore")
}

func (c *Client) lifecycle(medicationID, action string) (*models.Medication, error) {
	var med models.Medication
	if _, err := c.do(http.MethodPost, "/medications/"+medicationID+"/"+action, nil, &med); err != nil {
		return nil, err
	}
	return &med, nil
}

// DoseLog fetches the most recent dose log entries.
func (c *Client) DoseLog(limit int) ([]models.DoseLogEntry, error) {
	var entries []models.DoseLogEntry
	if err := c.get(fmt.Sprintf("/doses?limit=%d", limit), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Stats fetches adherence and inventory statistics.
func (c *Client) Stats(days int) (*controlplane.StatsResponse, error) {
	var stats controlplane.StatsResponse
	if err := c.get(fmt.Sprintf("/doses/stats?days=%d", days), &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Problems fetches medications whose regimen could not be evaluated.
func (c *Client) Problems() ([]models.Problem, error) {
	var problems []models.Problem
	if err := c.get("/problems", &problems); err != nil {
		return nil, err
	}
	return problems, nil
}

// CheckHealth checks if the daemon is healthy
func (c *Client) CheckHealth() (bool, error) {
	var health controlplane.HealthResponse
	if _, err := c.do(http.MethodGet, "/health", nil, &health); err != nil {
		return false, err
	}
	return health.OK, nil
}

func (c *Client) get(path string, v interface{}) error {
	_, err := c.do(http.MethodGet, path, nil, v)
	return err
}

// do performs a request and decodes the JSON response into v. It reports
// false when the server answered 204 No Content.
func (c *Client) do(method, path string, data, v interface{}) (bool, error) {
	var body io.Reader
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return false, err
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return false, err
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return false, fmt.Errorf("API error: %s", apiErr.Error)
		}
		return false, fmt.Errorf("API error: %s", string(bytes.TrimSpace(respBody)))
	}
	if resp.StatusCode == http.StatusNoContent || v == nil {
		return resp.StatusCode != http.StatusNoContent, nil
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return false, err
	}
	return true, nil
}
