package domain

import "time"

// TimeLayout is the fixed-width UTC layout used for every stored timestamp so
// that lexical order matches chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// DateLayout is the layout of task due dates.
const DateLayout = "2006-01-02"

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

type Role string

const (
	RoleStudent   Role = "STUDENT"
	RoleStartuper Role = "STARTUPER"
	RoleAngel     Role = "ANGEL"
	RoleAdmin     Role = "ADMIN"
)

func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleStartuper, RoleAngel, RoleAdmin:
		return true
	}
	return false
}

type User struct {
	ID          string  `json:"id"`
	Username    string  `json:"username"`
	Email       string  `json:"email,omitempty"`
	Role        Role    `json:"role" enum:"STUDENT,STARTUPER,ANGEL,ADMIN"`
	WorkspaceID *string `json:"workspace_id,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

type Workspace struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	OwnerID    string  `json:"owner_id"`
	JoinCode   *string `json:"join_code,omitempty"`
	ScoreTotal int     `json:"score_total"`
	CreatedAt  string  `json:"created_at" format:"date-time"`
}

type ContractStatus string

const (
	ContractDraft     ContractStatus = "DRAFT"
	ContractSent      ContractStatus = "SENT"
	ContractSigned    ContractStatus = "SIGNED"
	ContractCancelled ContractStatus = "CANCELLED"
)

// Terminal reports whether no further mutation is allowed.
func (s ContractStatus) Terminal() bool {
	return s == ContractSigned || s == ContractCancelled
}

type Contract struct {
	ID        string         `json:"id"`
	CreatorID string         `json:"creator_id"`
	Title     string         `json:"title"`
	Template  string         `json:"template"`
	Content   string         `json:"content"`
	Status    ContractStatus `json:"status" enum:"DRAFT,SENT,SIGNED,CANCELLED"`
	CreatedAt string         `json:"created_at" format:"date-time"`
}

type SignatureStatus string

const (
	SignaturePending  SignatureStatus = "PENDING"
	SignatureSigned   SignatureStatus = "SIGNED"
	SignatureRejected SignatureStatus = "REJECTED"
)

type Signature struct {
	ContractID string          `json:"contract_id"`
	PartyID    string          `json:"party_id"`
	Status     SignatureStatus `json:"status" enum:"PENDING,SIGNED,REJECTED"`
	SignedAt   *string         `json:"signed_at,omitempty" format:"date-time"`
	CreatedAt  string          `json:"created_at" format:"date-time"`
}

// AllSigned reports whether a non-empty signature set is unanimously SIGNED.
func AllSigned(sigs []Signature) bool {
	if len(sigs) == 0 {
		return false
	}
	for _, s := range sigs {
		if s.Status != SignatureSigned {
			return false
		}
	}
	return true
}

type TaskStatus string

const (
	TaskTodo       TaskStatus = "TODO"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskDone       TaskStatus = "DONE"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskTodo, TaskInProgress, TaskDone:
		return true
	}
	return false
}

type TaskPriority string

const (
	PriorityLow    TaskPriority = "LOW"
	PriorityMedium TaskPriority = "MEDIUM"
	PriorityHigh   TaskPriority = "HIGH"
)

func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

type Task struct {
	ID          string       `json:"id"`
	WorkspaceID string       `json:"workspace_id"`
	Title       string       `json:"title"`
	Description *string      `json:"description,omitempty"`
	Status      TaskStatus   `json:"status" enum:"TODO,IN_PROGRESS,DONE"`
	Priority    TaskPriority `json:"priority" enum:"LOW,MEDIUM,HIGH"`
	DueDate     *string      `json:"due_date,omitempty" format:"date"`
	CreatorID   string       `json:"creator_id"`
	AssigneeID  *string      `json:"assignee_id,omitempty"`
	CreatedAt   string       `json:"created_at" format:"date-time"`
	UpdatedAt   string       `json:"updated_at" format:"date-time"`
}

type Notification struct {
	ID        string  `json:"id"`
	UserID    string  `json:"user_id"`
	Message   string  `json:"message"`
	Kind      string  `json:"kind"`
	RelatedID *string `json:"related_id,omitempty"`
	IsRead    bool    `json:"is_read"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

const (
	NotificationContract = "CONTRACT"
	NotificationTask     = "TASK"
)

type ScoreEvent struct {
	ID          int64  `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	EventType   string `json:"event_type"`
	Points      int    `json:"points"`
	Note        string `json:"note,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID          int64  `json:"id"`
	TS          string `json:"ts" format:"date-time"`
	Type        string `json:"type"`
	WorkspaceID string `json:"workspace_id,omitempty"`
	EntityKind  string `json:"entity_kind"`
	EntityID    string `json:"entity_id,omitempty"`
	ActorID     string `json:"actor_id"`
	Payload     string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
