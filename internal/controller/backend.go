package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tutorlane/liveclass/internal/dtos"
	"github.com/tutorlane/liveclass/internal/models"
)

// BackendClient talks to the control-plane REST API. The HTTP client
// carries a timeout so a hung call fails rather than leaving the caller
// pending forever.
type BackendClient struct {
	baseURL     string
	accessToken string
	http        *http.Client
	log         zerolog.Logger
}

func NewBackendClient(baseURL, accessToken string, log zerolog.Logger) *BackendClient {
	return &BackendClient{
		baseURL:     baseURL,
		accessToken: accessToken,
		http:        &http.Client{Timeout: 15 * time.Second},
		log:         log.With().Str("component", "backend-client").Logger(),
	}
}

// Join requests credentials for a lesson. A too-early denial comes back as
// *dtos.WaitGate (check with errors.As); any other non-200 is a generic
// failure and the session must not be entered.
func (c *BackendClient) Join(ctx context.Context, lessonID uuid.UUID) (*dtos.JoinResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/sessions/%s/join", c.baseURL, lessonID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("join request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var join dtos.JoinResponse
		if err := json.NewDecoder(resp.Body).Decode(&join); err != nil {
			return nil, fmt.Errorf("decoding join response: %w", err)
		}
		return &join, nil

	case http.StatusForbidden:
		var body dtos.WaitGateBody
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error == dtos.ErrorTooEarly {
			return nil, &dtos.WaitGate{Message: body.Message, OpenAt: body.OpenAt}
		}
		return nil, fmt.Errorf("join denied (status %d)", resp.StatusCode)

	default:
		return nil, fmt.Errorf("join failed (status %d)", resp.StatusCode)
	}
}

// Session binds the room token minted at join to the per-session control
// calls. It implements LockBackend, ExtendBackend and ResourceBackend.
func (c *BackendClient) Session(lessonID uuid.UUID, roomToken string) *SessionClient {
	return &SessionClient{client: c, lessonID: lessonID, roomToken: roomToken}
}

type SessionClient struct {
	client    *BackendClient
	lessonID  uuid.UUID
	roomToken string
}

var (
	_ LockBackend     = (*SessionClient)(nil)
	_ ExtendBackend   = (*SessionClient)(nil)
	_ ResourceBackend = (*SessionClient)(nil)
)

func (s *SessionClient) SetLock(ctx context.Context, target LockTarget, locked bool) error {
	body, _ := json.Marshal(dtos.LockRequest{Target: string(target), Locked: locked})
	resp, err := s.do(ctx, http.MethodPost, "/lock", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("lock update failed (status %d)", resp.StatusCode)
	}
	return nil
}

func (s *SessionClient) Extend(ctx context.Context, minutes int) (time.Time, error) {
	body, _ := json.Marshal(dtos.ExtendRequest{Minutes: minutes})
	resp, err := s.do(ctx, http.MethodPost, "/extend", "application/json", bytes.NewReader(body))
	if err != nil {
		return time.Time{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return time.Time{}, fmt.Errorf("extension failed (status %d)", resp.StatusCode)
	}

	var extended dtos.ExtendResponse
	if err := json.NewDecoder(resp.Body).Decode(&extended); err != nil {
		return time.Time{}, fmt.Errorf("decoding extend response: %w", err)
	}
	return extended.NewEndTime, nil
}

func (s *SessionClient) UploadResource(ctx context.Context, title, filename string, file io.Reader) (*models.Resource, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	if err := form.WriteField("title", title); err != nil {
		return nil, err
	}
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, err
	}
	if err := form.Close(); err != nil {
		return nil, err
	}

	resp, err := s.do(ctx, http.MethodPost, "/resources", form.FormDataContentType(), &buf)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("upload failed (status %d)", resp.StatusCode)
	}

	var created models.Resource
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("decoding upload response: %w", err)
	}
	return &created, nil
}

func (s *SessionClient) RemoveResource(ctx context.Context, resourceID uuid.UUID) error {
	resp, err := s.do(ctx, http.MethodDelete, "/resources/"+resourceID.String(), "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("removal failed (status %d)", resp.StatusCode)
	}
	return nil
}

func (s *SessionClient) do(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	url := fmt.Sprintf("%s/api/sessions/%s%s", s.client.baseURL, s.lessonID, path)
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.roomToken)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return s.client.http.Do(req)
}
