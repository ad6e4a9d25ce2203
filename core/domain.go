package core

import (
	"strings"
	"time"
)

const IssueTypeFeishu = "FEISHU"

type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
)

type UserIDType string

const (
	UserIDTypeOpenID  UserIDType = "open_id"
	UserIDTypeUnionID UserIDType = "union_id"
	UserIDTypeUserID  UserIDType = "user_id"
)

type AppCredentials struct {
	AppID     string
	AppSecret string
}

// Credential is a cached tenant access token. It is replaced as a whole and
// never mutated in place.
type Credential struct {
	SubjectKey string
	Token      string
	ExpiresAt  time.Time
}

// Usable reports whether the credential stays valid past now+buffer.
func (c Credential) Usable(now time.Time, buffer time.Duration) bool {
	if strings.TrimSpace(c.Token) == "" || c.ExpiresAt.IsZero() {
		return false
	}
	return c.ExpiresAt.After(now.Add(buffer))
}

type User struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

func (u User) DisplayName() string {
	if name := strings.TrimSpace(u.Name); name != "" {
		return name
	}
	return u.ID
}

type Tasklist struct {
	GUID string `json:"tasklist_guid"`
	Name string `json:"name"`
}

type CustomField struct {
	GUID  string `json:"guid"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Due struct {
	Timestamp string `json:"timestamp,omitempty"`
	IsAllDay  bool   `json:"is_all_day,omitempty"`
}

// Issue is the normalized remote task.
type Issue struct {
	ID           string        `json:"id"`
	GUID         string        `json:"guid"`
	Summary      string        `json:"summary"`
	Description  string        `json:"description,omitempty"`
	Due          *Due          `json:"due,omitempty"`
	Creator      *User         `json:"creator,omitempty"`
	Members      []User        `json:"members,omitempty"`
	CompletedAt  string        `json:"completed_at,omitempty"`
	CreatedAt    string        `json:"created_at"`
	UpdatedAt    string        `json:"updated_at"`
	Status       string        `json:"status,omitempty"`
	Extra        string        `json:"extra,omitempty"`
	Tasklists    []Tasklist    `json:"tasklists,omitempty"`
	CustomFields []CustomField `json:"custom_fields,omitempty"`
	SubtaskCount int           `json:"subtask_count"`
	URL          string        `json:"url"`
}

// IsCompleted uses the completion timestamp, not the status field. The task
// API reports open tasks with completed_at "0", so "0" counts as open.
func (i Issue) IsCompleted() bool {
	value := strings.TrimSpace(i.CompletedAt)
	return value != "" && value != "0"
}

func (i Issue) Reduced() IssueReduced {
	return IssueReduced{
		ID:        i.ID,
		GUID:      i.GUID,
		Summary:   i.Summary,
		URL:       i.URL,
		UpdatedAt: i.UpdatedAt,
		Status:    i.Status,
	}
}

type IssueReduced struct {
	ID        string `json:"id"`
	GUID      string `json:"guid"`
	Summary   string `json:"summary"`
	URL       string `json:"url,omitempty"`
	UpdatedAt string `json:"updated_at"`
	Status    string `json:"status,omitempty"`
}

// TaskPatch carries only the fields that changed.
type TaskPatch struct {
	Summary     *string `json:"summary,omitempty"`
	Description *string `json:"description,omitempty"`
	Due         *Due    `json:"due,omitempty"`
	Extra       *string `json:"extra,omitempty"`
}

func (p TaskPatch) IsEmpty() bool {
	return p.Summary == nil && p.Description == nil && p.Due == nil && p.Extra == nil
}

func (p TaskPatch) Fields() []string {
	fields := make([]string, 0, 4)
	if p.Summary != nil {
		fields = append(fields, "summary")
	}
	if p.Description != nil {
		fields = append(fields, "description")
	}
	if p.Due != nil {
		fields = append(fields, "due")
	}
	if p.Extra != nil {
		fields = append(fields, "extra")
	}
	return fields
}

type Comment struct {
	ID string `json:"comment_id"`
}

// Page is one cursor page of a list endpoint.
type Page[T any] struct {
	Items      []T
	NextCursor string
	HasMore    bool
}

// LocalTask is the slice of the host task model this module reads and writes.
type LocalTask struct {
	ProviderLinkID   string     `json:"provider_link_id"`
	RemoteID         string     `json:"remote_id"`
	IssueType        string     `json:"issue_type,omitempty"`
	Title            string     `json:"title"`
	Notes            string     `json:"notes,omitempty"`
	IsDone           bool       `json:"is_done"`
	DoneAt           *time.Time `json:"done_at,omitempty"`
	IssueLastUpdated int64      `json:"issue_last_updated,omitempty"`
}

// Key identifies the task for sync bookkeeping.
func (t LocalTask) Key() string {
	return TaskKey(t.ProviderLinkID, t.RemoteID)
}

func (t LocalTask) IsLinked() bool {
	return strings.TrimSpace(t.ProviderLinkID) != "" && strings.TrimSpace(t.RemoteID) != ""
}

func TaskKey(providerLinkID string, remoteID string) string {
	return strings.TrimSpace(providerLinkID) + "-" + strings.TrimSpace(remoteID)
}

// TaskData is the set of local task fields derived from an issue.
type TaskData struct {
	Title            string `json:"title"`
	IssueType        string `json:"issue_type"`
	IssueLastUpdated int64  `json:"issue_last_updated,omitempty"`
	IssueWasUpdated  bool   `json:"issue_was_updated"`
	Notes            string `json:"notes,omitempty"`
}

type FreshData struct {
	TaskChanges TaskData `json:"task_changes"`
	Issue       Issue    `json:"issue"`
	IssueTitle  string   `json:"issue_title"`
}

type FreshTaskData struct {
	Task        LocalTask `json:"task"`
	TaskChanges TaskData  `json:"task_changes"`
	Issue       Issue     `json:"issue"`
}

type SearchResult struct {
	Title            string `json:"title"`
	TitleHighlighted string `json:"title_highlighted"`
	IssueType        string `json:"issue_type"`
	Issue            Issue  `json:"issue_data"`
}
