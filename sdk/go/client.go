package launchpadsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Launchpad HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	// ActorID is sent as X-Actor-Id when no credentials are set. Servers accept
	// it only with auth.allow_actor_header enabled.
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

type Me struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	Role        string `json:"role"`
	Tier        string `json:"tier"`
	WorkspaceID string `json:"workspace_id,omitempty"`
	AuthSource  string `json:"auth_source"`
}

type Contract struct {
	ID        string `json:"id"`
	CreatorID string `json:"creator_id"`
	Title     string `json:"title"`
	Template  string `json:"template"`
	Content   string `json:"content"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

type Signature struct {
	ContractID string `json:"contract_id"`
	PartyID    string `json:"party_id"`
	Status     string `json:"status"`
	SignedAt   string `json:"signed_at,omitempty"`
	CreatedAt  string `json:"created_at"`
}

// ContractDetail is a contract with its signature rows.
type ContractDetail struct {
	Contract
	Signatures []Signature `json:"signatures"`
}

// ContractPatch fields left nil are not changed.
type ContractPatch struct {
	Title    *string `json:"title,omitempty"`
	Template *string `json:"template,omitempty"`
	Content  *string `json:"content,omitempty"`
}

type Task struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
	DueDate     string `json:"due_date,omitempty"`
	CreatorID   string `json:"creator_id"`
	AssigneeID  string `json:"assignee_id,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

type TaskInput struct {
	Title            string  `json:"title"`
	Description      *string `json:"description,omitempty"`
	Priority         *string `json:"priority,omitempty"`
	DueDate          *string `json:"due_date,omitempty"`
	AssigneeUsername *string `json:"assignee_username,omitempty"`
}

// TaskPatch fields left nil are not changed; an empty string clears
// description, due date or assignee.
type TaskPatch struct {
	Title            *string `json:"title,omitempty"`
	Description      *string `json:"description,omitempty"`
	Priority         *string `json:"priority,omitempty"`
	Status           *string `json:"status,omitempty"`
	DueDate          *string `json:"due_date,omitempty"`
	AssigneeUsername *string `json:"assignee_username,omitempty"`
}

type Workspace struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	OwnerID    string `json:"owner_id"`
	JoinCode   string `json:"join_code,omitempty"`
	ScoreTotal int    `json:"score_total"`
	CreatedAt  string `json:"created_at"`
}

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role"`
}

type Score struct {
	WorkspaceID string `json:"workspace_id"`
	Total       int    `json:"score_total"`
}

type ScoreEvent struct {
	ID        int64  `json:"id"`
	EventType string `json:"event_type"`
	Points    int    `json:"points"`
	Note      string `json:"note,omitempty"`
	CreatedAt string `json:"created_at"`
}

type Notification struct {
	ID        string `json:"id"`
	Message   string `json:"message"`
	Kind      string `json:"kind"`
	RelatedID string `json:"related_id,omitempty"`
	IsRead    bool   `json:"is_read"`
	CreatedAt string `json:"created_at"`
}

// Event represents an audit log entry.
type Event struct {
	ID          int64  `json:"id"`
	TS          string `json:"ts"`
	Type        string `json:"type"`
	WorkspaceID string `json:"workspace_id"`
	EntityKind  string `json:"entity_kind"`
	EntityID    string `json:"entity_id"`
	ActorID     string `json:"actor_id"`
	Payload     string `json:"payload_json"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

func (c *Client) Me(ctx context.Context) (Me, error) {
	var resp Me
	err := c.do(ctx, http.MethodGet, "me", nil, &resp)
	return resp, err
}

// DevLogin mints a bearer token on servers started with --dev-login and
// stores it on the client.
func (c *Client) DevLogin(ctx context.Context, userID string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "auth/dev/login", map[string]string{"user_id": userID}, &resp); err != nil {
		return "", err
	}
	c.BearerToken = resp.Token
	return resp.Token, nil
}

func (c *Client) CreateContract(ctx context.Context, title, template, content string) (Contract, error) {
	body := map[string]string{"title": title, "template": template, "content": content}
	var resp Contract
	err := c.do(ctx, http.MethodPost, "contracts", body, &resp)
	return resp, err
}

func (c *Client) ListContracts(ctx context.Context) ([]Contract, error) {
	var resp struct {
		Items []Contract `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "contracts", nil, &resp)
	return resp.Items, err
}

func (c *Client) GetContract(ctx context.Context, id string) (ContractDetail, error) {
	var resp ContractDetail
	err := c.do(ctx, http.MethodGet, "contracts/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *Client) UpdateContract(ctx context.Context, id string, patch ContractPatch) (Contract, error) {
	var resp Contract
	err := c.do(ctx, http.MethodPatch, "contracts/"+url.PathEscape(id), patch, &resp)
	return resp, err
}

func (c *Client) ContractSignatures(ctx context.Context, id string) ([]Signature, error) {
	var resp struct {
		Items []Signature `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "contracts/"+url.PathEscape(id)+"/signatures", nil, &resp)
	return resp.Items, err
}

func (c *Client) SendContract(ctx context.Context, id string, partyIDs []string) (ContractDetail, error) {
	var resp ContractDetail
	err := c.do(ctx, http.MethodPost, "contracts/"+url.PathEscape(id)+"/send", map[string]any{"party_ids": partyIDs}, &resp)
	return resp, err
}

func (c *Client) SignContract(ctx context.Context, id string) (ContractDetail, error) {
	var resp ContractDetail
	err := c.do(ctx, http.MethodPost, "contracts/"+url.PathEscape(id)+"/sign", nil, &resp)
	return resp, err
}

func (c *Client) RejectContract(ctx context.Context, id string) (ContractDetail, error) {
	var resp ContractDetail
	err := c.do(ctx, http.MethodPost, "contracts/"+url.PathEscape(id)+"/reject", nil, &resp)
	return resp, err
}

func (c *Client) CreateTask(ctx context.Context, in TaskInput) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", in, &resp)
	return resp, err
}

func (c *Client) ListTasks(ctx context.Context) ([]Task, error) {
	var resp struct {
		Items []Task `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "tasks", nil, &resp)
	return resp.Items, err
}

func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *Client) UpdateTask(ctx context.Context, id string, patch TaskPatch) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPatch, "tasks/"+url.PathEscape(id), patch, &resp)
	return resp, err
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "tasks/"+url.PathEscape(id), nil, nil)
}

func (c *Client) CreateWorkspace(ctx context.Context, name string) (Workspace, error) {
	var resp Workspace
	err := c.do(ctx, http.MethodPost, "workspace", map[string]string{"name": name}, &resp)
	return resp, err
}

func (c *Client) RotateJoinCode(ctx context.Context) (string, error) {
	var resp struct {
		JoinCode string `json:"join_code"`
	}
	err := c.do(ctx, http.MethodPost, "workspace/join-code", nil, &resp)
	return resp.JoinCode, err
}

func (c *Client) JoinWorkspace(ctx context.Context, code string) (Workspace, error) {
	var resp Workspace
	err := c.do(ctx, http.MethodPost, "workspace/join", map[string]string{"join_code": code}, &resp)
	return resp, err
}

func (c *Client) Members(ctx context.Context) ([]User, error) {
	var resp struct {
		Items []User `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "workspace/members", nil, &resp)
	return resp.Items, err
}

func (c *Client) Score(ctx context.Context) (Score, error) {
	var resp Score
	err := c.do(ctx, http.MethodGet, "workspace/score", nil, &resp)
	return resp, err
}

func (c *Client) ScoreEvents(ctx context.Context, limit int) ([]ScoreEvent, error) {
	var resp struct {
		Items []ScoreEvent `json:"items"`
	}
	endpoint := "workspace/score/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// EventsPage returns a page of workspace audit events, newest first.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) Notifications(ctx context.Context, unreadOnly bool) ([]Notification, error) {
	var resp struct {
		Items []Notification `json:"items"`
	}
	endpoint := "notifications"
	if unreadOnly {
		endpoint += "?unread=true"
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "notifications/"+url.PathEscape(id)+"/read", nil, nil)
}

func (c *Client) MarkAllNotificationsRead(ctx context.Context) (int64, error) {
	var resp struct {
		Updated int64 `json:"updated"`
	}
	err := c.do(ctx, http.MethodPost, "notifications/read-all", nil, &resp)
	return resp.Updated, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(endpoint), &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) endpoint(p string) string {
	base := strings.TrimRight(c.BaseURL, "/")
	prefix := strings.Trim(c.BasePath, "/")
	if prefix != "" {
		base += "/" + prefix
	}
	return base + "/" + strings.TrimLeft(p, "/")
}
