package query

import (
	"context"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-feishu/core"
)

func TestMessageValidation_FieldErrors(t *testing.T) {
	cases := []struct {
		name  string
		msg   interface{ Validate() error }
		field string
	}{
		{"missing guid", GetIssueMessage{GUID: " "}, "guid"},
		{"missing link", FreshDataMessage{Task: core.LocalTask{RemoteID: "g-1"}}, "task.provider_link_id"},
		{"missing remote", FreshDataMessage{Task: core.LocalTask{ProviderLinkID: "p-1"}}, "task.remote_id"},
		{"negative limit", RecentSyncRunsMessage{Limit: -1}, "limit"},
		{"limit too large", RecentSyncRunsMessage{Limit: maxRecentSyncRuns + 1}, "limit"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var rich *goerrors.Error
			if !goerrors.As(tc.msg.Validate(), &rich) {
				t.Fatalf("expected go-errors envelope")
			}
			if rich.Category != goerrors.CategoryValidation || rich.Code != http.StatusBadRequest {
				t.Fatalf("unexpected envelope category=%q code=%d", rich.Category, rich.Code)
			}
			if rich.TextCode != core.ServiceErrorBadInput {
				t.Fatalf("expected %q text code, got %q", core.ServiceErrorBadInput, rich.TextCode)
			}
			fields := rich.AllValidationErrors()
			if len(fields) != 1 || fields[0].Field != tc.field {
				t.Fatalf("expected field %q, got %+v", tc.field, fields)
			}
		})
	}

	for _, ok := range []interface{ Validate() error }{
		SearchIssuesMessage{},
		NewItemsMessage{},
		TestConnectionMessage{},
		RecentSyncRunsMessage{Limit: maxRecentSyncRuns},
	} {
		if err := ok.Validate(); err != nil {
			t.Fatalf("expected %T to validate, got %v", ok, err)
		}
	}
}

func TestQueries_NilReaderReturnsInternalEnvelope(t *testing.T) {
	ctx := context.Background()
	var fresh *FreshDataQuery
	_, freshErr := fresh.Query(ctx, FreshDataMessage{})
	var runs *RecentSyncRunsQuery
	_, runsErr := runs.Query(ctx, RecentSyncRunsMessage{})

	for _, err := range []error{freshErr, runsErr} {
		var rich *goerrors.Error
		if !goerrors.As(err, &rich) {
			t.Fatalf("expected go-errors envelope, got %T", err)
		}
		if rich.Category != goerrors.CategoryInternal || rich.TextCode != core.ServiceErrorInternal {
			t.Fatalf("unexpected envelope category=%q text=%q", rich.Category, rich.TextCode)
		}
		if rich.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rich.Code)
		}
	}
}
