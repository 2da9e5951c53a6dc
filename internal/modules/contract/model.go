// README: Contract aggregate, status values and the transition rules.
package contract

import (
	"time"

	"bagdrop/internal/modules/vicinity"
	"bagdrop/internal/types"
)

// Status mirrors contract_status_id.
type Status int

const (
	StatusNone           Status = 0
	StatusPending        Status = 1
	StatusCancelled      Status = 2
	StatusAwaitingPickup Status = 3
	StatusInTransit      Status = 4
	StatusDelivered      Status = 5
	StatusFailed         Status = 6
)

var statusNames = map[Status]string{
	StatusNone:           "none",
	StatusPending:        "pending",
	StatusCancelled:      "cancelled",
	StatusAwaitingPickup: "accepted_awaiting_pickup",
	StatusInTransit:      "in_transit",
	StatusDelivered:      "delivered",
	StatusFailed:         "failed",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s Status) Valid() bool {
	return s >= StatusPending && s <= StatusFailed
}

// Terminal statuses are kept for history and never change again.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusDelivered || s == StatusFailed
}

// ProofKind names an uploaded proof image.
type ProofKind string

const (
	ProofPickup        ProofKind = "pickup_proof"
	ProofPassengerID   ProofKind = "passenger_id"
	ProofPassengerForm ProofKind = "passenger_form"
	ProofDelivery      ProofKind = "delivery_proof"
	ProofFailed        ProofKind = "failed_proof"
)

func (k ProofKind) Valid() bool {
	switch k {
	case ProofPickup, ProofPassengerID, ProofPassengerForm, ProofDelivery, ProofFailed:
		return true
	}
	return false
}

type Contract struct {
	ID                  types.ID
	Status              Status
	StatusVersion       int
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
	CurrentLocation     string
	CurrentGeo          *types.Point
	DropOffLocation     string
	DropOffGeo          *types.Point
	DeliveryID          *types.ID
	AirlineID           types.ID
	DeliveryCharge      types.Money
	Surcharge           types.Money
	Discount            types.Money
	PricingStatus       string
	Remarks             string
	Proofs              map[ProofKind]string
	CreatedAt           time.Time
	AcceptedAt          *time.Time
	PickupAt            *time.Time
	DeliveredAt         *time.Time
	CancelledAt         *time.Time
}

// AssignedTo reports whether id is the delivery person on the contract.
func (c *Contract) AssignedTo(id types.ID) bool {
	return c.DeliveryID != nil && *c.DeliveryID == id
}

// Total is charge + surcharge - discount, never below zero.
func (c *Contract) Total() types.Money {
	amount := c.DeliveryCharge.Amount + c.Surcharge.Amount - c.Discount.Amount
	if amount < 0 {
		amount = 0
	}
	return types.Money{Amount: amount, Currency: c.DeliveryCharge.Currency}
}

type Event struct {
	ID         int64
	ContractID types.ID
	FromStatus Status
	ToStatus   Status
	Action     Action
	ActorRole  types.Role
	ActorID    *types.ID
	Remarks    string
	CreatedAt  time.Time
}

// Action is a user-triggered transition.
type Action string

const (
	ActionCreate  Action = "create"
	ActionAccept  Action = "accept"
	ActionPickup  Action = "pickup"
	ActionDeliver Action = "deliver"
	ActionFail    Action = "fail"
	ActionCancel  Action = "cancel"
)

// Actor is the authenticated caller of a contract operation.
type Actor struct {
	ID   types.ID
	Role types.Role
}

// ActorRule restricts who may trigger a transition.
type ActorRule int

const (
	// AnyDelivery: any delivery person (the contract is not assigned yet).
	AnyDelivery ActorRule = iota + 1
	// AssignedDelivery: only the delivery person already on the contract.
	AssignedDelivery
	// OwnerOrAssigned: the owning airline staff or the assigned delivery person.
	OwnerOrAssigned
)

// Target picks which stored geometry the vicinity check measures against.
type Target int

const (
	TargetNone Target = iota
	TargetPickup
	TargetDropOff
)

type Rule struct {
	From     []Status
	To       Status
	Actor    ActorRule
	Remarks  bool
	Proofs   []ProofKind
	Vicinity vicinity.Action
	Target   Target
}

// Rules is the contract state graph. Nothing else defines transitions.
var Rules = map[Action]Rule{
	ActionAccept: {
		From:  []Status{StatusPending},
		To:    StatusAwaitingPickup,
		Actor: AnyDelivery,
	},
	ActionPickup: {
		From:     []Status{StatusAwaitingPickup},
		To:       StatusInTransit,
		Actor:    AssignedDelivery,
		Proofs:   []ProofKind{ProofPickup},
		Vicinity: vicinity.ActionPickup,
		Target:   TargetPickup,
	},
	ActionDeliver: {
		From:     []Status{StatusInTransit},
		To:       StatusDelivered,
		Actor:    AssignedDelivery,
		Proofs:   []ProofKind{ProofPassengerID, ProofPassengerForm, ProofDelivery},
		Vicinity: vicinity.ActionDeliver,
		Target:   TargetDropOff,
	},
	ActionFail: {
		From:     []Status{StatusInTransit},
		To:       StatusFailed,
		Actor:    AssignedDelivery,
		Remarks:  true,
		Proofs:   []ProofKind{ProofFailed},
		Vicinity: vicinity.ActionFail,
		Target:   TargetDropOff,
	},
	ActionCancel: {
		From:    []Status{StatusPending, StatusAwaitingPickup},
		To:      StatusCancelled,
		Actor:   OwnerOrAssigned,
		Remarks: true,
	},
}

// Allows reports whether the rule accepts a contract in status from.
func (r Rule) Allows(from Status) bool {
	for _, s := range r.From {
		if s == from {
			return true
		}
	}
	return false
}

func CanTransition(from, to Status) bool {
	for _, r := range Rules {
		if r.To == to && r.Allows(from) {
			return true
		}
	}
	return false
}
