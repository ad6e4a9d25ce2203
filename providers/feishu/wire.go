package feishu

import (
	"encoding/json"
	"strings"
)

// envelope is the {code,msg,data} wrapper every task API response uses.
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// RemoteTask is a task as the task v2 API returns it.
type RemoteTask struct {
	GUID          string              `json:"guid"`
	Summary       string              `json:"summary"`
	Description   string              `json:"description,omitempty"`
	Due           *RemoteDue          `json:"due,omitempty"`
	Creator       *RemoteMember       `json:"creator,omitempty"`
	Members       []RemoteMember      `json:"members,omitempty"`
	CompletedAt   string              `json:"completed_at,omitempty"`
	CreatedAt     string              `json:"created_at,omitempty"`
	UpdatedAt     string              `json:"updated_at,omitempty"`
	Status        string              `json:"status,omitempty"`
	Extra         string              `json:"extra,omitempty"`
	Tasklists     []RemoteTasklist    `json:"tasklists,omitempty"`
	CustomFields  []RemoteCustomField `json:"custom_fields,omitempty"`
	TaskCountInfo *RemoteTaskCount    `json:"task_count_info,omitempty"`
	Mode          int                 `json:"mode,omitempty"`
	Source        int                 `json:"source,omitempty"`
	URL           string              `json:"url,omitempty"`
}

type RemoteDue struct {
	Timestamp string `json:"timestamp,omitempty"`
	IsAllDay  bool   `json:"is_all_day,omitempty"`
}

type RemoteMember struct {
	ID   string `json:"id"`
	Type string `json:"type,omitempty"`
	Role string `json:"role,omitempty"`
	Name string `json:"name,omitempty"`
}

type RemoteTasklist struct {
	GUID string `json:"tasklist_guid"`
	Name string `json:"name,omitempty"`
}

type RemoteTaskCount struct {
	SubtaskCount int `json:"subtask_count"`
}

// RemoteCustomField keeps the scalar value shapes. Member and multi select
// values are not surfaced.
type RemoteCustomField struct {
	GUID              string   `json:"guid"`
	Name              string   `json:"name,omitempty"`
	Type              string   `json:"type,omitempty"`
	TextValue         string   `json:"text_value,omitempty"`
	NumberValue       string   `json:"number_value,omitempty"`
	DatetimeValue     string   `json:"datetime_value,omitempty"`
	SingleSelectValue string   `json:"single_select_value,omitempty"`
	MultiSelectValue  []string `json:"multi_select_value,omitempty"`
}

func (f RemoteCustomField) value() string {
	for _, candidate := range []string{f.TextValue, f.NumberValue, f.DatetimeValue, f.SingleSelectValue} {
		if strings.TrimSpace(candidate) != "" {
			return candidate
		}
	}
	return strings.Join(f.MultiSelectValue, ",")
}

type taskListData struct {
	Items     []RemoteTask `json:"items"`
	PageToken string       `json:"page_token"`
	HasMore   bool         `json:"has_more"`
}

type taskData struct {
	Task *RemoteTask `json:"task"`
}

type taskPatchBody struct {
	Task         taskPatchFields `json:"task"`
	UpdateFields []string        `json:"update_fields"`
}

type taskPatchFields struct {
	Summary     *string    `json:"summary,omitempty"`
	Description *string    `json:"description,omitempty"`
	Due         *RemoteDue `json:"due,omitempty"`
	Extra       *string    `json:"extra,omitempty"`
}

type commentBody struct {
	Content  string `json:"content"`
	ParentID string `json:"parent_id"`
}

type commentData struct {
	CommentID string `json:"comment_id"`
	Comment   *struct {
		ID string `json:"id"`
	} `json:"comment,omitempty"`
}

func (d commentData) id() string {
	if strings.TrimSpace(d.CommentID) != "" {
		return d.CommentID
	}
	if d.Comment != nil {
		return d.Comment.ID
	}
	return ""
}
