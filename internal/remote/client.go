package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"examscan-pipeline/internal/config"
	"examscan-pipeline/internal/logger"
	"examscan-pipeline/internal/model"
	pkgerr "examscan-pipeline/pkg/errors"

	"github.com/rs/zerolog"
)

// Client talks to the authoritative store over its JSON API. Lookup calls run
// under the configured lookup budget; grade commits run under the tighter
// commit budget and are never retried in place.
type Client struct {
	cfg         *config.Config
	httpClient  *http.Client
	authManager *AuthManager
	log         zerolog.Logger
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		cfg:         cfg,
		httpClient:  &http.Client{},
		authManager: NewAuthManager(cfg),
		log:         logger.Get(),
	}
}

func (c *Client) GetStudent(ctx context.Context, studentID string) (*model.StudentRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Remote.LookupTimeout)
	defer cancel()

	var student model.StudentRecord
	err := c.do(ctx, http.MethodGet, "/api/v1/students/"+url.PathEscape(studentID), nil, &student)
	if err != nil {
		return nil, err
	}
	return &student, nil
}

func (c *Client) ListStudents(ctx context.Context, sectionID string) ([]model.StudentRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Remote.LookupTimeout)
	defer cancel()

	path := "/api/v1/students"
	if sectionID != "" {
		path += "?section=" + url.QueryEscape(sectionID)
	}

	var out struct {
		Students []model.StudentRecord `json:"students"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Students, nil
}

func (c *Client) ExistingStudentIDs(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Remote.LookupTimeout)
	defer cancel()

	body := map[string][]string{"ids": ids}
	var out struct {
		Existing []string `json:"existing"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/students/query", body, &out); err != nil {
		return nil, err
	}
	return out.Existing, nil
}

func (c *Client) InsertStudents(ctx context.Context, students []model.StudentRecord) error {
	if len(students) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Remote.LookupTimeout)
	defer cancel()

	body := map[string]interface{}{"students": students}
	return c.do(ctx, http.MethodPost, "/api/v1/students/batch", body, nil)
}

func (c *Client) DeleteStudents(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Remote.LookupTimeout)
	defer cancel()

	body := map[string][]string{"ids": ids}
	return c.do(ctx, http.MethodPost, "/api/v1/students/delete", body, nil)
}

func (c *Client) GetExam(ctx context.Context, examID string) (*model.Exam, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Remote.LookupTimeout)
	defer cancel()

	var exam model.Exam
	if err := c.do(ctx, http.MethodGet, "/api/v1/exams/"+url.PathEscape(examID), nil, &exam); err != nil {
		return nil, err
	}
	return &exam, nil
}

func (c *Client) FindGrade(ctx context.Context, studentID, examID string) (*model.GradeStorageRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Remote.LookupTimeout)
	defer cancel()

	path := fmt.Sprintf("/api/v1/grades?student_id=%s&exam_id=%s",
		url.QueryEscape(studentID), url.QueryEscape(examID))

	var out struct {
		Records []model.GradeStorageRecord `json:"records"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if len(out.Records) == 0 {
		return nil, nil
	}
	return &out.Records[0], nil
}

func (c *Client) InsertGrade(ctx context.Context, rec model.GradeStorageRecord) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Remote.CommitTimeout)
	defer cancel()

	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/grades", rec, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.Remote.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.authManager.GetToken(ctx)
	if err != nil {
		return pkgerr.NewTransientError(err, "failed to get auth token")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return pkgerr.NewTransientError(err, "request exceeded time budget")
		}
		return pkgerr.NewTransientError(err, "HTTP request failed")
	}
	defer resp.Body.Close()

	if err := c.classifyStatus(resp); err != nil {
		return err
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// classifyStatus maps the store's typed failures onto the pipeline taxonomy.
// Connectivity-class answers become transient; definite rejections are final.
func (c *Client) classifyStatus(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return pkgerr.ErrNotFound
	case http.StatusUnauthorized:
		// Token likely expired; next attempt re-authenticates.
		c.authManager.Invalidate()
		return pkgerr.NewTransientError(errors.New("unauthorized"), "authentication expired")
	case http.StatusForbidden:
		return pkgerr.NewRejectedError(errors.New("forbidden"), "permission denied")
	case http.StatusConflict:
		// The store's unique guard fired: the record already exists.
		return pkgerr.NewRejectedError(pkgerr.ErrDuplicateRecord, "conflict")
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return pkgerr.NewRejectedError(fmt.Errorf("HTTP %d", resp.StatusCode), "malformed request")
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return pkgerr.NewTransientError(fmt.Errorf("HTTP %d", resp.StatusCode), "store unavailable")
	default:
		return pkgerr.NewTransientError(fmt.Errorf("HTTP %d", resp.StatusCode), "unexpected store response")
	}
}
