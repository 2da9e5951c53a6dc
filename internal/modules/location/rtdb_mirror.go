// README: Mirrors live delivery positions into Firebase Realtime Database.
package location

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/db"

	"bagdrop/internal/types"
)

const rtdbNode = "delivery_locations"

// rtdbEntry is what the app reads under /delivery_locations/{uid}.
type rtdbEntry struct {
	Lat       float64  `json:"lat"`
	Lng       float64  `json:"lng"`
	Address   string   `json:"address"`
	Contracts []string `json:"contracts"`
	Timestamp int64    `json:"timestamp"`
}

type RTDBMirror struct {
	client *db.Client
}

func NewRTDBMirror(client *db.Client) *RTDBMirror {
	return &RTDBMirror{client: client}
}

func (m *RTDBMirror) Publish(ctx context.Context, userID types.ID, f Fix, address string, contracts []types.ID) error {
	ids := make([]string, 0, len(contracts))
	for _, id := range contracts {
		ids = append(ids, string(id))
	}
	entry := rtdbEntry{
		Lat:       f.Position.Lat,
		Lng:       f.Position.Lng,
		Address:   address,
		Contracts: ids,
		Timestamp: f.RecordedAt.UnixMilli(),
	}
	if err := m.client.NewRef(rtdbNode).Child(string(userID)).Set(ctx, entry); err != nil {
		return fmt.Errorf("writing %s/%s: %w", rtdbNode, userID, err)
	}
	return nil
}

func (m *RTDBMirror) Remove(ctx context.Context, userID types.ID) error {
	return m.client.NewRef(rtdbNode).Child(string(userID)).Delete(ctx)
}
