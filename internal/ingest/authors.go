package ingest

import (
	"context"

	"xnom/internal/model"
)

// UserLookup resolves user ids in batches.
type UserLookup interface {
	GetUsersByIDs(ctx context.Context, ids []string) ([]model.User, error)
}

// CollectAuthors maps author IDs to users using batched lookups.
func CollectAuthors(ctx context.Context, client UserLookup, ids []string) (map[string]model.User, error) {
	uniq := make(map[string]struct{}, len(ids))
	arr := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := uniq[id]; ok {
			continue
		}
		uniq[id] = struct{}{}
		arr = append(arr, id)
	}
	out := make(map[string]model.User, len(arr))
	// batch by 100
	for i := 0; i < len(arr); i += 100 {
		end := i + 100
		if end > len(arr) {
			end = len(arr)
		}
		users, err := client.GetUsersByIDs(ctx, arr[i:end])
		if err != nil {
			return out, err
		}
		for _, u := range users {
			out[u.ID] = u
		}
	}
	return out, nil
}

// fillAuthors sets Author on events the API returned without an expansion.
// Lookup failures leave the events as they were.
func fillAuthors(ctx context.Context, client UserLookup, evs []model.RawEvent) error {
	var missing []string
	for _, e := range evs {
		if e.Author.Username == "" && e.AuthorID != "" {
			missing = append(missing, e.AuthorID)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	users, err := CollectAuthors(ctx, client, missing)
	for i := range evs {
		if evs[i].Author.Username != "" {
			continue
		}
		if u, ok := users[evs[i].AuthorID]; ok {
			evs[i].Author = u
		}
	}
	return err
}
