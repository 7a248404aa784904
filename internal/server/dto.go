package server

import (
	"launchpad/internal/domain"
	"launchpad/internal/engine"
)

// Request payloads

type DevLoginRequest struct {
	UserID string `json:"user_id"`
}

type CreateContractRequest struct {
	Title    string `json:"title" maxLength:"200"`
	Template string `json:"template"`
	Content  string `json:"content"`
}

type UpdateContractRequest struct {
	Title    *string `json:"title,omitempty" maxLength:"200"`
	Template *string `json:"template,omitempty"`
	Content  *string `json:"content,omitempty"`
}

type SendContractRequest struct {
	PartyIDs []string `json:"party_ids"`
}

type CreateTaskRequest struct {
	Title            string  `json:"title"`
	Description      *string `json:"description,omitempty"`
	Priority         *string `json:"priority,omitempty" enum:"LOW,MEDIUM,HIGH"`
	DueDate          *string `json:"due_date,omitempty" format:"date"`
	AssigneeUsername *string `json:"assignee_username,omitempty"`
}

type UpdateTaskRequest struct {
	Title            *string `json:"title,omitempty"`
	Description      *string `json:"description,omitempty"`
	Priority         *string `json:"priority,omitempty" enum:"LOW,MEDIUM,HIGH"`
	Status           *string `json:"status,omitempty" enum:"TODO,IN_PROGRESS,DONE"`
	DueDate          *string `json:"due_date,omitempty"`
	AssigneeUsername *string `json:"assignee_username,omitempty"`
}

type CreateWorkspaceRequest struct {
	Name string `json:"name"`
}

type JoinWorkspaceRequest struct {
	JoinCode string `json:"join_code"`
}

// Response payloads

type DevLoginResponse struct {
	Token string `json:"token"`
}

type MeResponse struct {
	UserID      string  `json:"user_id"`
	Username    string  `json:"username"`
	Role        string  `json:"role"`
	Tier        string  `json:"tier" enum:"NONE,MEMBER,OWNER"`
	WorkspaceID *string `json:"workspace_id,omitempty"`
	AuthSource  string  `json:"auth_source"`
}

type ContractDetailResponse struct {
	domain.Contract
	Signatures []domain.Signature `json:"signatures"`
}

func contractDetailResponse(d engine.ContractDetail) ContractDetailResponse {
	return ContractDetailResponse{Contract: d.Contract, Signatures: nonNilSlice(d.Signatures)}
}

type JoinCodeResponse struct {
	JoinCode string `json:"join_code"`
}

type ScoreResponse struct {
	WorkspaceID string `json:"workspace_id"`
	Total       int    `json:"score_total"`
}

type MarkAllReadResponse struct {
	Updated int64 `json:"updated"`
}

type listResponse[T any] struct {
	Items []T `json:"items"`
}

func listOf[T any](items []T) listResponse[T] {
	return listResponse[T]{Items: nonNilSlice(items)}
}

type paginatedEvents struct {
	Items      []domain.Event `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

func nonNilSlice[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
