// README: Contract service runs the guarded transitions and their side effects.
package contract

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"bagdrop/internal/logger"
	"bagdrop/internal/metrics"
	"bagdrop/internal/modules/feed"
	"bagdrop/internal/modules/notify"
	"bagdrop/internal/modules/pricing"
	"bagdrop/internal/modules/vicinity"
	"bagdrop/internal/types"
)

var (
	ErrBadRequest      = errors.New("bad request")
	ErrNotFound        = errors.New("contract not found")
	ErrForbidden       = errors.New("not allowed for this user")
	ErrInvalidState    = errors.New("invalid state transition")
	ErrConflict        = errors.New("contract state conflict")
	ErrRemarksRequired = errors.New("remarks are required")
	ErrProofRequired   = errors.New("proof image is required")
	ErrOutsideVicinity = errors.New("not within the required vicinity")
	ErrMalformedRow    = errors.New("malformed contract row")
)

type Repository interface {
	Create(ctx context.Context, c *Contract) error
	Get(ctx context.Context, id types.ID) (*Contract, error)
	List(ctx context.Context, f Filter) ([]Contract, error)
	Transition(ctx context.Context, t Transition) (bool, error)
	AppendEvent(ctx context.Context, e *Event) error
	ListEvents(ctx context.Context, id types.ID) ([]Event, error)
	CountInTransit(ctx context.Context, deliveryID types.ID) (int, error)
	ActiveDeliveryIDs(ctx context.Context) ([]types.ID, error)
	UpdateCurrentLocation(ctx context.Context, deliveryID types.ID, text string, p types.Point) ([]Contract, error)
}

type Pricer interface {
	Quote(ctx context.Context, address string) pricing.Quote
}

type Notifier interface {
	Notify(ctx context.Context, userID types.ID, msg notify.Message)
}

type Publisher interface {
	Publish(ctx context.Context, e feed.Event) error
}

// Positions returns the last known device position of a user, or nil.
type Positions interface {
	Current(ctx context.Context, userID types.ID) (*types.Point, error)
}

type Uploader interface {
	UploadProof(ctx context.Context, contractID types.ID, kind string, contentType string, data []byte) (string, error)
}

// ProofRemover is implemented by uploaders that can delete a stored proof.
type ProofRemover interface {
	RemoveProof(ctx context.Context, url string) error
}

type Geocoder interface {
	Geocode(ctx context.Context, address string) (types.Point, error)
}

// Deps are the optional collaborators of the service. Nil members are skipped.
type Deps struct {
	Pricer    Pricer
	Notifier  Notifier
	Publisher Publisher
	Positions Positions
	Uploader  Uploader
	Geocoder  Geocoder
}

type Service struct {
	repo    Repository
	gate    *vicinity.Gate
	deps    Deps
	log     logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(repo Repository, gate *vicinity.Gate, deps Deps, log logger.Logger, m *metrics.Metrics) *Service {
	return &Service{repo: repo, gate: gate, deps: deps, log: log, metrics: m, now: time.Now}
}

type Filter struct {
	DeliveryID *types.ID
	AirlineID  *types.ID
	Statuses   []Status
	Limit      int
}

// Transition is one conditional status update. It applies only while the
// row still has From and Version.
type Transition struct {
	ID         types.ID
	From       Status
	To         Status
	Version    int
	DeliveryID *types.ID
	Remarks    *string
	Proofs     map[ProofKind]string
	At         time.Time
}

type CreateCommand struct {
	Actor               Actor
	OwnerFirstName      string
	OwnerMiddleInitial  string
	OwnerLastName       string
	OwnerContact        string
	OwnerEmail          string
	FlightNumber        string
	LuggageQuantity     int
	LuggageDescriptions []string
	PickupLocation      string
	PickupGeo           *types.Point
	DropOffLocation     string
	DropOffGeo          *types.Point
	Surcharge           int64
	Discount            int64
}

// Proof is an image attached to an action before it is uploaded.
type Proof struct {
	ContentType string
	Data        []byte
}

// ActionCommand carries everything an action handler may need. Position is
// the device position sent with the request; when nil the last reported
// fix of the actor is used.
type ActionCommand struct {
	ContractID types.ID
	Actor      Actor
	Remarks    string
	Position   *types.Point
	Proofs     map[ProofKind]Proof
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Contract, error) {
	if cmd.Actor.Role != types.RoleAirline || cmd.Actor.ID == "" {
		return nil, ErrForbidden
	}
	if err := validateCreate(cmd); err != nil {
		return nil, err
	}

	now := s.now()
	c := &Contract{
		ID:                  newTrackingCode(now),
		Status:              StatusPending,
		OwnerFirstName:      strings.TrimSpace(cmd.OwnerFirstName),
		OwnerMiddleInitial:  strings.TrimSpace(cmd.OwnerMiddleInitial),
		OwnerLastName:       strings.TrimSpace(cmd.OwnerLastName),
		OwnerContact:        strings.TrimSpace(cmd.OwnerContact),
		OwnerEmail:          strings.TrimSpace(cmd.OwnerEmail),
		FlightNumber:        strings.ToUpper(strings.TrimSpace(cmd.FlightNumber)),
		LuggageQuantity:     cmd.LuggageQuantity,
		LuggageDescriptions: cmd.LuggageDescriptions,
		PickupLocation:      strings.TrimSpace(cmd.PickupLocation),
		PickupGeo:           cmd.PickupGeo,
		DropOffLocation:     strings.TrimSpace(cmd.DropOffLocation),
		DropOffGeo:          cmd.DropOffGeo,
		AirlineID:           cmd.Actor.ID,
		DeliveryCharge:      types.NewMoney(0),
		Surcharge:           types.NewMoney(cmd.Surcharge),
		Discount:            types.NewMoney(cmd.Discount),
		PricingStatus:       string(pricing.StatusNoPricing),
		Proofs:              map[ProofKind]string{},
		CreatedAt:           now,
	}

	if s.deps.Pricer != nil {
		q := s.deps.Pricer.Quote(ctx, c.DropOffLocation)
		c.DeliveryCharge = q.Fee
		c.PricingStatus = string(q.Status)
	}
	if c.DropOffGeo == nil {
		c.DropOffGeo = s.geocode(ctx, "drop-off", c.DropOffLocation)
	}
	if c.PickupGeo == nil {
		c.PickupGeo = s.geocode(ctx, "pickup", c.PickupLocation)
	}
	// Pickup is gated on the pickup point; without one the contract could
	// be accepted but never picked up.
	if c.PickupGeo == nil && s.gate.Enabled() {
		return nil, fmt.Errorf("%w: pickup location could not be located", ErrBadRequest)
	}

	if err := s.repo.Create(ctx, c); err != nil {
		s.metrics.ObserveTransition(string(ActionCreate), "error")
		return nil, err
	}
	s.metrics.ObserveTransition(string(ActionCreate), "ok")

	s.appendEvent(ctx, &Event{
		ContractID: c.ID,
		FromStatus: StatusNone,
		ToStatus:   StatusPending,
		Action:     ActionCreate,
		ActorRole:  cmd.Actor.Role,
		ActorID:    &cmd.Actor.ID,
		CreatedAt:  now,
	})
	s.publish(ctx, feed.TypeContractCreated, c, now)
	return c, nil
}

// geocode is best effort: nil when there is no geocoder, no address or no result.
func (s *Service) geocode(ctx context.Context, which, address string) *types.Point {
	if s.deps.Geocoder == nil || address == "" {
		return nil
	}
	p, err := s.deps.Geocoder.Geocode(ctx, address)
	if err != nil {
		s.log.Warn(which+" geocoding failed", "address", address, "error", err)
		return nil
	}
	return &p
}

func validateCreate(cmd CreateCommand) error {
	var missing []string
	if strings.TrimSpace(cmd.OwnerFirstName) == "" {
		missing = append(missing, "owner first name")
	}
	if strings.TrimSpace(cmd.OwnerLastName) == "" {
		missing = append(missing, "owner last name")
	}
	if strings.TrimSpace(cmd.FlightNumber) == "" {
		missing = append(missing, "flight number")
	}
	if strings.TrimSpace(cmd.DropOffLocation) == "" {
		missing = append(missing, "drop-off location")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrBadRequest, strings.Join(missing, ", "))
	}
	if cmd.LuggageQuantity < 1 {
		return fmt.Errorf("%w: luggage quantity must be at least 1", ErrBadRequest)
	}
	if len(cmd.LuggageDescriptions) > cmd.LuggageQuantity {
		return fmt.Errorf("%w: more luggage descriptions than pieces", ErrBadRequest)
	}
	if cmd.Surcharge < 0 || cmd.Discount < 0 {
		return fmt.Errorf("%w: negative amount", ErrBadRequest)
	}
	return nil
}

// Get returns a contract the actor may see: admins see everything, airline
// staff their own contracts, delivery people pending ones and their own.
func (s *Service) Get(ctx context.Context, actor Actor, id types.ID) (*Contract, error) {
	if id == "" {
		return nil, ErrBadRequest
	}
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !visible(actor, c) {
		return nil, ErrNotFound
	}
	return c, nil
}

func visible(actor Actor, c *Contract) bool {
	switch actor.Role {
	case types.RoleAdmin:
		return true
	case types.RoleAirline:
		return c.AirlineID == actor.ID
	case types.RoleDelivery:
		return c.Status == StatusPending || c.AssignedTo(actor.ID)
	}
	return false
}

// List scopes f to what the actor may see.
func (s *Service) List(ctx context.Context, actor Actor, f Filter) ([]Contract, error) {
	switch actor.Role {
	case types.RoleAdmin:
	case types.RoleAirline:
		f.AirlineID = &actor.ID
	case types.RoleDelivery:
		f.DeliveryID = &actor.ID
	default:
		return nil, ErrForbidden
	}
	for _, st := range f.Statuses {
		if !st.Valid() {
			return nil, fmt.Errorf("%w: unknown status %d", ErrBadRequest, st)
		}
	}
	return s.repo.List(ctx, f)
}

// ListPending returns the unassigned contracts open for acceptance.
func (s *Service) ListPending(ctx context.Context, actor Actor) ([]Contract, error) {
	if actor.Role != types.RoleDelivery && actor.Role != types.RoleAdmin {
		return nil, ErrForbidden
	}
	return s.repo.List(ctx, Filter{Statuses: []Status{StatusPending}})
}

func (s *Service) History(ctx context.Context, actor Actor, id types.ID) ([]Event, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.repo.ListEvents(ctx, id)
}

func (s *Service) Accept(ctx context.Context, cmd ActionCommand) (*Contract, error) {
	return s.apply(ctx, ActionAccept, cmd)
}

func (s *Service) Pickup(ctx context.Context, cmd ActionCommand) (*Contract, error) {
	return s.apply(ctx, ActionPickup, cmd)
}

func (s *Service) Deliver(ctx context.Context, cmd ActionCommand) (*Contract, error) {
	return s.apply(ctx, ActionDeliver, cmd)
}

func (s *Service) Fail(ctx context.Context, cmd ActionCommand) (*Contract, error) {
	return s.apply(ctx, ActionFail, cmd)
}

func (s *Service) Cancel(ctx context.Context, cmd ActionCommand) (*Contract, error) {
	return s.apply(ctx, ActionCancel, cmd)
}

// Apply dispatches by action name; it is what the HTTP layer calls.
func (s *Service) Apply(ctx context.Context, action Action, cmd ActionCommand) (*Contract, error) {
	return s.apply(ctx, action, cmd)
}

// apply runs one transition: guards, proof upload, the conditional update,
// then the event row, the feed and the counterpart notification.
func (s *Service) apply(ctx context.Context, action Action, cmd ActionCommand) (*Contract, error) {
	rule, ok := Rules[action]
	if !ok {
		return nil, fmt.Errorf("%w: unknown action %q", ErrBadRequest, action)
	}
	if cmd.ContractID == "" || cmd.Actor.ID == "" {
		return nil, ErrBadRequest
	}

	c, err := s.repo.Get(ctx, cmd.ContractID)
	if err != nil {
		return nil, err
	}
	if err := s.guard(ctx, action, rule, c, cmd); err != nil {
		s.metrics.ObserveTransition(string(action), "rejected")
		return nil, err
	}

	urls, err := s.uploadProofs(ctx, c.ID, rule.Proofs, cmd.Proofs)
	if err != nil {
		s.discardProofs(ctx, c.ID, urls)
		s.metrics.ObserveTransition(string(action), "error")
		return nil, err
	}

	now := s.now()
	t := Transition{
		ID:      c.ID,
		From:    c.Status,
		To:      rule.To,
		Version: c.StatusVersion,
		Proofs:  urls,
		At:      now,
	}
	if action == ActionAccept {
		t.DeliveryID = &cmd.Actor.ID
	}
	remarks := strings.TrimSpace(cmd.Remarks)
	if remarks != "" {
		t.Remarks = &remarks
	}

	applied, err := s.repo.Transition(ctx, t)
	if err != nil {
		s.discardProofs(ctx, c.ID, urls)
		s.metrics.ObserveTransition(string(action), "error")
		return nil, err
	}
	if !applied {
		s.discardProofs(ctx, c.ID, urls)
		s.metrics.ObserveTransition(string(action), "conflict")
		return nil, ErrConflict
	}
	s.metrics.ObserveTransition(string(action), "ok")

	from := c.Status
	applyTransition(c, t)

	s.appendEvent(ctx, &Event{
		ContractID: c.ID,
		FromStatus: from,
		ToStatus:   c.Status,
		Action:     action,
		ActorRole:  cmd.Actor.Role,
		ActorID:    &cmd.Actor.ID,
		Remarks:    remarks,
		CreatedAt:  now,
	})
	s.publish(ctx, feed.TypeStatusChanged, c, now)
	s.notifyCounterpart(ctx, action, c, cmd.Actor)
	return c, nil
}

func (s *Service) guard(ctx context.Context, action Action, rule Rule, c *Contract, cmd ActionCommand) error {
	if !rule.Allows(c.Status) {
		return fmt.Errorf("%w: cannot %s a %s contract", ErrInvalidState, action, c.Status)
	}
	if !actorAllowed(rule.Actor, c, cmd.Actor) {
		return ErrForbidden
	}
	if rule.Remarks && strings.TrimSpace(cmd.Remarks) == "" {
		return ErrRemarksRequired
	}
	for _, kind := range rule.Proofs {
		if p, ok := cmd.Proofs[kind]; !ok || len(p.Data) == 0 {
			return fmt.Errorf("%w: %s", ErrProofRequired, kind)
		}
	}
	if rule.Vicinity != "" {
		d := s.decide(ctx, rule, c, cmd.Actor.ID, cmd.Position)
		if !d.Permitted {
			return ErrOutsideVicinity
		}
	}
	return nil
}

func actorAllowed(r ActorRule, c *Contract, a Actor) bool {
	switch r {
	case AnyDelivery:
		return a.Role == types.RoleDelivery
	case AssignedDelivery:
		return a.Role == types.RoleDelivery && c.AssignedTo(a.ID)
	case OwnerOrAssigned:
		if a.Role == types.RoleAirline {
			return c.AirlineID == a.ID
		}
		return a.Role == types.RoleDelivery && c.AssignedTo(a.ID)
	}
	return false
}

// CheckVicinity evaluates the gate for an action without changing anything,
// so clients can disable the action up front.
func (s *Service) CheckVicinity(ctx context.Context, actor Actor, id types.ID, action Action, position *types.Point) (vicinity.Decision, error) {
	rule, ok := Rules[action]
	if !ok || rule.Vicinity == "" {
		return vicinity.Decision{}, fmt.Errorf("%w: action %q has no vicinity check", ErrBadRequest, action)
	}
	c, err := s.Get(ctx, actor, id)
	if err != nil {
		return vicinity.Decision{}, err
	}
	return s.decide(ctx, rule, c, actor.ID, position), nil
}

func (s *Service) decide(ctx context.Context, rule Rule, c *Contract, userID types.ID, position *types.Point) vicinity.Decision {
	if position == nil && s.deps.Positions != nil && s.gate.Enabled() {
		p, err := s.deps.Positions.Current(ctx, userID)
		if err != nil {
			s.log.Warn("reading last position failed", "user_id", userID, "error", err)
		}
		position = p
	}

	var target *types.Point
	switch rule.Target {
	case TargetPickup:
		target = c.PickupGeo
	case TargetDropOff:
		target = c.DropOffGeo
	}

	d := s.gate.Check(rule.Vicinity, position, target)
	switch {
	case d.Bypassed:
		s.metrics.ObserveVicinity(string(rule.Vicinity), "bypassed")
	case d.DistanceMeters == nil:
		s.metrics.ObserveVicinity(string(rule.Vicinity), "unavailable")
	case d.Permitted:
		s.metrics.ObserveVicinity(string(rule.Vicinity), "permitted")
	default:
		s.metrics.ObserveVicinity(string(rule.Vicinity), "blocked")
	}
	return d
}

func (s *Service) uploadProofs(ctx context.Context, id types.ID, kinds []ProofKind, proofs map[ProofKind]Proof) (map[ProofKind]string, error) {
	if len(kinds) == 0 {
		return nil, nil
	}
	if s.deps.Uploader == nil {
		return nil, errors.New("proof uploads are not configured")
	}
	urls := make(map[ProofKind]string, len(kinds))
	for _, kind := range kinds {
		p := proofs[kind]
		url, err := s.deps.Uploader.UploadProof(ctx, id, string(kind), p.ContentType, p.Data)
		if err != nil {
			// The caller discards what was already stored.
			return urls, fmt.Errorf("uploading %s: %w", kind, err)
		}
		urls[kind] = url
	}
	return urls, nil
}

// discardProofs removes images uploaded for a transition that did not land.
// Objects that cannot be removed are logged so they can be cleaned up later.
func (s *Service) discardProofs(ctx context.Context, id types.ID, urls map[ProofKind]string) {
	if len(urls) == 0 {
		return
	}
	remover, _ := s.deps.Uploader.(ProofRemover)
	ctx = context.WithoutCancel(ctx)
	for kind, u := range urls {
		if remover != nil {
			err := remover.RemoveProof(ctx, u)
			if err == nil {
				continue
			}
			s.log.Warn("proof removal failed", "contract", id, "kind", kind, "error", err)
		}
		s.log.Warn("orphaned proof image", "contract", id, "kind", kind, "url", u)
	}
}

// applyTransition mirrors on c what the store wrote for t.
func applyTransition(c *Contract, t Transition) {
	c.Status = t.To
	c.StatusVersion++
	at := t.At
	switch t.To {
	case StatusAwaitingPickup:
		c.AcceptedAt = &at
	case StatusInTransit:
		c.PickupAt = &at
	case StatusDelivered:
		c.DeliveredAt = &at
	case StatusCancelled, StatusFailed:
		c.CancelledAt = &at
	}
	if t.DeliveryID != nil {
		id := *t.DeliveryID
		c.DeliveryID = &id
	}
	if t.Remarks != nil {
		c.Remarks = *t.Remarks
	}
	if len(t.Proofs) > 0 && c.Proofs == nil {
		c.Proofs = map[ProofKind]string{}
	}
	for k, v := range t.Proofs {
		c.Proofs[k] = v
	}
}

func (s *Service) appendEvent(ctx context.Context, e *Event) {
	if err := s.repo.AppendEvent(ctx, e); err != nil {
		s.log.Error("appending contract event failed", "contract_id", e.ContractID, "error", err)
	}
}

func (s *Service) publish(ctx context.Context, typ string, c *Contract, at time.Time) {
	if s.deps.Publisher == nil {
		return
	}
	e := feed.Event{
		Type:       typ,
		ContractID: c.ID,
		Status:     int(c.Status),
		AirlineID:  c.AirlineID,
		At:         at,
	}
	if c.DeliveryID != nil {
		e.DeliveryID = *c.DeliveryID
	}
	if err := s.deps.Publisher.Publish(ctx, e); err != nil {
		s.log.Warn("publishing contract event failed", "contract_id", c.ID, "error", err)
	}
}

var actionMessages = map[Action]struct{ title, body string }{
	ActionAccept:  {"Contract accepted", "A delivery person accepted contract %s."},
	ActionPickup:  {"Luggage picked up", "The luggage for contract %s is on its way."},
	ActionDeliver: {"Luggage delivered", "The luggage for contract %s was delivered."},
	ActionFail:    {"Delivery failed", "Delivery of contract %s failed."},
	ActionCancel:  {"Contract cancelled", "Contract %s was cancelled."},
}

// notifyCounterpart tells the other party about a successful action:
// airline staff hear about delivery-side actions and vice versa.
func (s *Service) notifyCounterpart(ctx context.Context, action Action, c *Contract, actor Actor) {
	if s.deps.Notifier == nil {
		return
	}
	var to types.ID
	switch {
	case actor.Role == types.RoleAirline && c.DeliveryID != nil:
		to = *c.DeliveryID
	case actor.Role == types.RoleDelivery:
		to = c.AirlineID
	}
	if to == "" {
		return
	}
	m := actionMessages[action]
	s.deps.Notifier.Notify(ctx, to, notify.Message{
		Title: m.title,
		Body:  fmt.Sprintf(m.body, c.ID),
		Data: map[string]string{
			"contract_id": string(c.ID),
			"action":      string(action),
			"status":      strconv.Itoa(int(c.Status)),
		},
	})
}

// CountInTransit is the activation query of the location loop.
func (s *Service) CountInTransit(ctx context.Context, deliveryID types.ID) (int, error) {
	if deliveryID == "" {
		return 0, ErrBadRequest
	}
	return s.repo.CountInTransit(ctx, deliveryID)
}

func (s *Service) ActiveDeliveryIDs(ctx context.Context) ([]types.ID, error) {
	return s.repo.ActiveDeliveryIDs(ctx)
}

// UpdateCurrentLocation writes the position onto every in-transit contract
// of the delivery person and returns the ids it touched.
func (s *Service) UpdateCurrentLocation(ctx context.Context, deliveryID types.ID, text string, p types.Point) ([]types.ID, error) {
	updated, err := s.repo.UpdateCurrentLocation(ctx, deliveryID, text, p)
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, 0, len(updated))
	now := s.now()
	for i := range updated {
		ids = append(ids, updated[i].ID)
		if s.deps.Publisher != nil {
			pos := p
			e := feed.Event{
				Type:       feed.TypeLocationUpdated,
				ContractID: updated[i].ID,
				Status:     int(updated[i].Status),
				DeliveryID: deliveryID,
				AirlineID:  updated[i].AirlineID,
				Location:   &pos,
				Address:    text,
				At:         now,
			}
			if err := s.deps.Publisher.Publish(ctx, e); err != nil {
				s.log.Warn("publishing location event failed", "contract_id", updated[i].ID, "error", err)
			}
		}
	}
	return ids, nil
}

// newTrackingCode builds YYMMDD-XXXXXXXX from the creation date and random hex.
func newTrackingCode(now time.Time) types.ID {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return types.ID(now.Format("060102") + "-" + strings.ToUpper(hex.EncodeToString(b[:])))
}
