package feishu

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-feishu/core"
)

const (
	IssueLinkBaseURL = "https://applink.feishu.cn/client/todo/detail"

	// secondsThreshold separates second and millisecond epoch values.
	secondsThreshold = int64(10000000000)
)

// ToIssue normalizes a remote task.
func ToIssue(task RemoteTask) core.Issue {
	issue := core.Issue{
		ID:          task.GUID,
		GUID:        task.GUID,
		Summary:     task.Summary,
		Description: task.Description,
		CompletedAt: task.CompletedAt,
		CreatedAt:   task.CreatedAt,
		UpdatedAt:   task.UpdatedAt,
		Status:      task.Status,
		Extra:       task.Extra,
		URL:         strings.TrimSpace(task.URL),
	}
	if task.Due != nil {
		issue.Due = &core.Due{Timestamp: task.Due.Timestamp, IsAllDay: task.Due.IsAllDay}
	}
	if task.Creator != nil {
		issue.Creator = &core.User{ID: task.Creator.ID, Name: task.Creator.Name}
	}
	if len(task.Members) > 0 {
		issue.Members = make([]core.User, 0, len(task.Members))
		for _, member := range task.Members {
			issue.Members = append(issue.Members, core.User{ID: member.ID, Name: member.Name})
		}
	}
	if len(task.Tasklists) > 0 {
		issue.Tasklists = make([]core.Tasklist, 0, len(task.Tasklists))
		for _, list := range task.Tasklists {
			issue.Tasklists = append(issue.Tasklists, core.Tasklist{GUID: list.GUID, Name: list.Name})
		}
	}
	if len(task.CustomFields) > 0 {
		issue.CustomFields = make([]core.CustomField, 0, len(task.CustomFields))
		for _, field := range task.CustomFields {
			issue.CustomFields = append(issue.CustomFields, core.CustomField{
				GUID:  field.GUID,
				Name:  field.Name,
				Value: field.value(),
			})
		}
	}
	if task.TaskCountInfo != nil {
		issue.SubtaskCount = task.TaskCountInfo.SubtaskCount
	}
	if issue.URL == "" {
		issue.URL = IssueURL(task.GUID)
	}
	return issue
}

func IssueURL(guid string) string {
	return IssueLinkBaseURL + "?guid=" + url.QueryEscape(strings.TrimSpace(guid))
}

// ParseTimestamp reads an epoch string as milliseconds. Values below the
// seconds threshold are taken as seconds. Empty or non numeric input yields
// false.
func ParseTimestamp(raw string) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	if value < secondsThreshold {
		return value * 1000, true
	}
	return value, true
}

// FormatMembers lists member names, falling back to ids.
func FormatMembers(members []core.User) string {
	if len(members) == 0 {
		return ""
	}
	names := make([]string, 0, len(members))
	for _, member := range members {
		if name := member.DisplayName(); name != "" {
			names = append(names, name)
		}
	}
	return strings.Join(names, ", ")
}

// TaskNotes renders the description followed by the metadata block.
func TaskNotes(issue core.Issue, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	var b strings.Builder
	if issue.Description != "" {
		b.WriteString(issue.Description)
		b.WriteString("\n\n")
	}
	if members := FormatMembers(issue.Members); members != "" {
		fmt.Fprintf(&b, "%s %s\n", core.NotesLabelMembers, members)
	}
	if len(issue.Tasklists) > 0 {
		names := make([]string, 0, len(issue.Tasklists))
		for _, list := range issue.Tasklists {
			names = append(names, list.Name)
		}
		fmt.Fprintf(&b, "%s %s\n", core.NotesLabelTasklists, strings.Join(names, ", "))
	}
	if issue.Due != nil {
		if ms, ok := ParseTimestamp(issue.Due.Timestamp); ok {
			fmt.Fprintf(&b, "%s %s\n", core.NotesLabelDue, time.UnixMilli(ms).In(loc).Format(time.RFC3339))
		}
	}
	if issue.SubtaskCount > 0 {
		fmt.Fprintf(&b, "%s %d\n", core.NotesLabelSubtasks, issue.SubtaskCount)
	}
	return strings.TrimSpace(b.String())
}

// AddTaskData derives the local task fields for issue.
func AddTaskData(issue core.Issue, loc *time.Location) core.TaskData {
	data := core.TaskData{
		Title:     issue.Summary,
		IssueType: core.IssueTypeFeishu,
		Notes:     TaskNotes(issue, loc),
	}
	if updated, ok := ParseTimestamp(issue.UpdatedAt); ok {
		data.IssueLastUpdated = updated
	}
	return data
}

func ToSearchResult(issue core.Issue) core.SearchResult {
	return core.SearchResult{
		Title:            issue.Summary,
		TitleHighlighted: issue.Summary,
		IssueType:        core.IssueTypeFeishu,
		Issue:            issue,
	}
}

// matchesTerm reports a case insensitive match on summary, description or
// guid. term must already be lower case.
func matchesTerm(issue core.Issue, term string) bool {
	return strings.Contains(strings.ToLower(issue.Summary), term) ||
		strings.Contains(strings.ToLower(issue.Description), term) ||
		strings.Contains(strings.ToLower(issue.GUID), term)
}
