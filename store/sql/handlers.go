package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func syncMarkHandlers() repository.ModelHandlers[*syncMarkRecord] {
	return repository.ModelHandlers[*syncMarkRecord]{
		NewRecord: func() *syncMarkRecord {
			return &syncMarkRecord{}
		},
		GetID: func(record *syncMarkRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *syncMarkRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "task_key"
		},
		GetIdentifierValue: func(record *syncMarkRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.TaskKey)
		},
	}
}

func tenantCredentialHandlers() repository.ModelHandlers[*tenantCredentialRecord] {
	return repository.ModelHandlers[*tenantCredentialRecord]{
		NewRecord: func() *tenantCredentialRecord {
			return &tenantCredentialRecord{}
		},
		GetID: func(record *tenantCredentialRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *tenantCredentialRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "app_id"
		},
		GetIdentifierValue: func(record *tenantCredentialRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.AppID)
		},
	}
}

func rateLimitStateHandlers() repository.ModelHandlers[*rateLimitStateRecord] {
	return repository.ModelHandlers[*rateLimitStateRecord]{
		NewRecord: func() *rateLimitStateRecord {
			return &rateLimitStateRecord{}
		},
		GetID: func(record *rateLimitStateRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *rateLimitStateRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *rateLimitStateRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func syncRunHandlers() repository.ModelHandlers[*syncRunRecord] {
	return repository.ModelHandlers[*syncRunRecord]{
		NewRecord: func() *syncRunRecord {
			return &syncRunRecord{}
		},
		GetID: func(record *syncRunRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *syncRunRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *syncRunRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
