// README: Contract store backed by PostgreSQL + PostGIS.
package contract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bagdrop/internal/geo"
	"bagdrop/internal/types"
)

const defaultListLimit = 100

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const contractColumns = `
	id, contract_status_id, status_version,
	owner_first_name, owner_middle_initial, owner_last_name, owner_contact, owner_email,
	flight_number, luggage_quantity, luggage_descriptions,
	pickup_location, ST_AsEWKT(pickup_location_geo),
	current_location, ST_AsEWKT(current_location_geo),
	drop_off_location, ST_AsEWKT(drop_off_location_geo),
	delivery_id, airline_id,
	delivery_charge, surcharge, discount, currency, pricing_status,
	remarks, proof_images,
	created_at, accepted_at, pickup_at, delivered_at, cancelled_at`

func (s *Store) Create(ctx context.Context, c *Contract) error {
	proofs, err := encodeProofs(c.Proofs)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO contracts (
			id, contract_status_id, status_version,
			owner_first_name, owner_middle_initial, owner_last_name, owner_contact, owner_email,
			flight_number, luggage_quantity, luggage_descriptions,
			pickup_location, pickup_location_geo,
			drop_off_location, drop_off_location_geo,
			delivery_id, airline_id,
			delivery_charge, surcharge, discount, currency, pricing_status,
			remarks, proof_images, created_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7, $8,
			$9, $10, $11,
			$12, ST_GeogFromText($13),
			$14, ST_GeogFromText($15),
			$16, $17,
			$18, $19, $20, $21, $22,
			$23, $24::jsonb, $25
		)`,
		string(c.ID), int(c.Status), c.StatusVersion,
		c.OwnerFirstName, c.OwnerMiddleInitial, c.OwnerLastName, c.OwnerContact, c.OwnerEmail,
		c.FlightNumber, c.LuggageQuantity, descriptions(c.LuggageDescriptions),
		c.PickupLocation, formatPoint(c.PickupGeo),
		c.DropOffLocation, formatPoint(c.DropOffGeo),
		idPtr(c.DeliveryID), string(c.AirlineID),
		c.DeliveryCharge.Amount, c.Surcharge.Amount, c.Discount.Amount, currencyOf(c.DeliveryCharge), c.PricingStatus,
		c.Remarks, proofs, c.CreatedAt,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Contract, error) {
	row := s.db.QueryRow(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id = $1`, string(id))
	c, err := scanContract(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) List(ctx context.Context, f Filter) ([]Contract, error) {
	var where []string
	var args []any
	if f.DeliveryID != nil {
		args = append(args, string(*f.DeliveryID))
		where = append(where, fmt.Sprintf("delivery_id = $%d", len(args)))
	}
	if f.AirlineID != nil {
		args = append(args, string(*f.AirlineID))
		where = append(where, fmt.Sprintf("airline_id = $%d", len(args)))
	}
	if len(f.Statuses) > 0 {
		ids := make([]int, 0, len(f.Statuses))
		for _, st := range f.Statuses {
			ids = append(ids, int(st))
		}
		args = append(args, ids)
		where = append(where, fmt.Sprintf("contract_status_id = ANY($%d)", len(args)))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)

	q := `SELECT ` + contractColumns + ` FROM contracts`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d`, len(args))

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// Transition is the single write of an action. It reports false when the
// row moved on since it was read.
func (s *Store) Transition(ctx context.Context, t Transition) (bool, error) {
	proofs, err := encodeProofs(t.Proofs)
	if err != nil {
		return false, err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE contracts
		SET contract_status_id = $1,
			status_version = status_version + 1,
			delivery_id = COALESCE($2, delivery_id),
			remarks = COALESCE($3, remarks),
			proof_images = proof_images || $4::jsonb,
			accepted_at = CASE WHEN $1 = 3 THEN $5 ELSE accepted_at END,
			pickup_at = CASE WHEN $1 = 4 THEN $5 ELSE pickup_at END,
			delivered_at = CASE WHEN $1 = 5 THEN $5 ELSE delivered_at END,
			cancelled_at = CASE WHEN $1 IN (2, 6) THEN $5 ELSE cancelled_at END
		WHERE id = $6 AND contract_status_id = $7 AND status_version = $8`,
		int(t.To),
		idPtr(t.DeliveryID),
		t.Remarks,
		proofs,
		t.At,
		string(t.ID),
		int(t.From),
		t.Version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO contract_status_events (
			contract_id, from_status, to_status, action, actor_role, actor_id, remarks, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		string(e.ContractID),
		int(e.FromStatus),
		int(e.ToStatus),
		string(e.Action),
		string(e.ActorRole),
		idPtr(e.ActorID),
		e.Remarks,
		e.CreatedAt,
	)
	return err
}

func (s *Store) ListEvents(ctx context.Context, id types.ID) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, contract_id, from_status, to_status, action, actor_role, actor_id, remarks, created_at
		FROM contract_status_events
		WHERE contract_id = $1
		ORDER BY created_at, id`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var contractID, action, role string
		var from, to int
		var actorID *string
		if err := rows.Scan(&e.ID, &contractID, &from, &to, &action, &role, &actorID, &e.Remarks, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ContractID = types.ID(contractID)
		e.FromStatus = Status(from)
		e.ToStatus = Status(to)
		e.Action = Action(action)
		e.ActorRole = types.Role(role)
		if actorID != nil {
			a := types.ID(*actorID)
			e.ActorID = &a
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) CountInTransit(ctx context.Context, deliveryID types.ID) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM contracts
		WHERE delivery_id = $1 AND contract_status_id = $2`,
		string(deliveryID), int(StatusInTransit),
	).Scan(&n)
	return n, err
}

func (s *Store) ActiveDeliveryIDs(ctx context.Context) ([]types.ID, error) {
	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT delivery_id FROM contracts
		WHERE contract_status_id = $1 AND delivery_id IS NOT NULL
		ORDER BY delivery_id`, int(StatusInTransit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.ID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, types.ID(id))
	}
	return out, rows.Err()
}

func (s *Store) UpdateCurrentLocation(ctx context.Context, deliveryID types.ID, text string, p types.Point) ([]Contract, error) {
	rows, err := s.db.Query(ctx, `
		UPDATE contracts
		SET current_location = $1,
			current_location_geo = ST_GeogFromText($2)
		WHERE delivery_id = $3 AND contract_status_id = $4
		RETURNING id, contract_status_id, airline_id`,
		text, geo.Format(p), string(deliveryID), int(StatusInTransit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Contract
	for rows.Next() {
		var id, airline string
		var st int
		if err := rows.Scan(&id, &st, &airline); err != nil {
			return nil, err
		}
		out = append(out, Contract{ID: types.ID(id), Status: Status(st), AirlineID: types.ID(airline)})
	}
	return out, rows.Err()
}

func scanContract(row pgx.Row) (*Contract, error) {
	var c Contract
	var id, airline string
	var status int
	var descs []string
	var pickupGeo, currentGeo, dropOffGeo *string
	var deliveryID *string
	var charge, surcharge, discount int64
	var currency string
	var proofs []byte
	var acceptedAt, pickupAt, deliveredAt, cancelledAt *time.Time

	err := row.Scan(
		&id, &status, &c.StatusVersion,
		&c.OwnerFirstName, &c.OwnerMiddleInitial, &c.OwnerLastName, &c.OwnerContact, &c.OwnerEmail,
		&c.FlightNumber, &c.LuggageQuantity, &descs,
		&c.PickupLocation, &pickupGeo,
		&c.CurrentLocation, &currentGeo,
		&c.DropOffLocation, &dropOffGeo,
		&deliveryID, &airline,
		&charge, &surcharge, &discount, &currency, &c.PricingStatus,
		&c.Remarks, &proofs,
		&c.CreatedAt, &acceptedAt, &pickupAt, &deliveredAt, &cancelledAt,
	)
	if err != nil {
		return nil, err
	}

	c.ID = types.ID(id)
	c.Status = Status(status)
	if !c.Status.Valid() {
		return nil, fmt.Errorf("%w: %s has status %d", ErrMalformedRow, id, status)
	}
	c.AirlineID = types.ID(airline)
	c.LuggageDescriptions = descs
	if deliveryID != nil {
		d := types.ID(*deliveryID)
		c.DeliveryID = &d
	}
	if currency == "" {
		currency = types.DefaultCurrency
	}
	c.DeliveryCharge = types.Money{Amount: charge, Currency: currency}
	c.Surcharge = types.Money{Amount: surcharge, Currency: currency}
	c.Discount = types.Money{Amount: discount, Currency: currency}
	c.AcceptedAt = acceptedAt
	c.PickupAt = pickupAt
	c.DeliveredAt = deliveredAt
	c.CancelledAt = cancelledAt

	if c.PickupGeo, err = parsePoint(id, "pickup_location_geo", pickupGeo); err != nil {
		return nil, err
	}
	if c.CurrentGeo, err = parsePoint(id, "current_location_geo", currentGeo); err != nil {
		return nil, err
	}
	if c.DropOffGeo, err = parsePoint(id, "drop_off_location_geo", dropOffGeo); err != nil {
		return nil, err
	}

	c.Proofs = map[ProofKind]string{}
	if len(proofs) > 0 {
		if err := json.Unmarshal(proofs, &c.Proofs); err != nil {
			return nil, fmt.Errorf("%w: %s proof_images: %v", ErrMalformedRow, id, err)
		}
	}
	return &c, nil
}

func parsePoint(id, column string, v *string) (*types.Point, error) {
	if v == nil || *v == "" {
		return nil, nil
	}
	p, ok := geo.ParseString(*v)
	if !ok {
		return nil, fmt.Errorf("%w: %s %s=%q", ErrMalformedRow, id, column, *v)
	}
	return &p, nil
}

func formatPoint(p *types.Point) *string {
	if p == nil {
		return nil
	}
	s := geo.Format(*p)
	return &s
}

func encodeProofs(p map[ProofKind]string) (string, error) {
	if len(p) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encoding proof images: %w", err)
	}
	return string(b), nil
}

func descriptions(d []string) []string {
	if d == nil {
		return []string{}
	}
	return d
}

func currencyOf(m types.Money) string {
	if m.Currency == "" {
		return types.DefaultCurrency
	}
	return m.Currency
}

func idPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
