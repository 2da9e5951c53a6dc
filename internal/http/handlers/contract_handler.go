// README: Contract handlers: create, list, detail, history, actions, vicinity and ETA.
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"bagdrop/internal/geo"
	"bagdrop/internal/maps"
	"bagdrop/internal/modules/contract"
	"bagdrop/internal/types"
)

const maxActionUpload = 32 << 20

var proofKinds = []contract.ProofKind{
	contract.ProofPickup,
	contract.ProofPassengerID,
	contract.ProofPassengerForm,
	contract.ProofDelivery,
	contract.ProofFailed,
}

// RouteEstimator gives a driving estimate between two points.
type RouteEstimator interface {
	Estimate(ctx context.Context, origin, destination types.Point) (maps.Estimate, error)
}

type ContractHandler struct {
	contracts *contract.Service
	routes    RouteEstimator
}

func NewContractHandler(svc *contract.Service, routes RouteEstimator) *ContractHandler {
	return &ContractHandler{contracts: svc, routes: routes}
}

// contractView is the wire shape of a contract row.
type contractView struct {
	ID                  types.ID                      `json:"id"`
	Status              contract.Status               `json:"contract_status_id"`
	StatusName          string                        `json:"contract_status"`
	OwnerFirstName      string                        `json:"owner_first_name"`
	OwnerMiddleInitial  string                        `json:"owner_middle_initial"`
	OwnerLastName       string                        `json:"owner_last_name"`
	OwnerContact        string                        `json:"owner_contact"`
	OwnerEmail          string                        `json:"owner_email"`
	FlightNumber        string                        `json:"flight_number"`
	LuggageQuantity     int                           `json:"luggage_quantity"`
	LuggageDescriptions []string                      `json:"luggage_descriptions"`
	PickupLocation      string                        `json:"pickup_location"`
	PickupGeo           string                        `json:"pickup_location_geo,omitempty"`
	CurrentLocation     string                        `json:"current_location"`
	CurrentGeo          string                        `json:"current_location_geo,omitempty"`
	DropOffLocation     string                        `json:"drop_off_location"`
	DropOffGeo          string                        `json:"drop_off_location_geo,omitempty"`
	DeliveryID          *types.ID                     `json:"delivery_id"`
	AirlineID           types.ID                      `json:"airline_id"`
	DeliveryCharge      types.Money                   `json:"delivery_charge"`
	Surcharge           types.Money                   `json:"delivery_surcharge"`
	Discount            types.Money                   `json:"delivery_discount"`
	Total               types.Money                   `json:"total"`
	PricingStatus       string                        `json:"pricing_status"`
	Remarks             string                        `json:"remarks"`
	Proofs              map[contract.ProofKind]string `json:"proof_images"`
	CreatedAt           time.Time                     `json:"created_at"`
	AcceptedAt          *time.Time                    `json:"accepted_at"`
	PickupAt            *time.Time                    `json:"pickup_at"`
	DeliveredAt         *time.Time                    `json:"delivered_at"`
	CancelledAt         *time.Time                    `json:"cancelled_at"`
}

func geometry(p *types.Point) string {
	if p == nil {
		return ""
	}
	return geo.Format(*p)
}

func viewContract(c *contract.Contract) contractView {
	return contractView{
		ID:                  c.ID,
		Status:              c.Status,
		StatusName:          c.Status.String(),
		OwnerFirstName:      c.OwnerFirstName,
		OwnerMiddleInitial:  c.OwnerMiddleInitial,
		OwnerLastName:       c.OwnerLastName,
		OwnerContact:        c.OwnerContact,
		OwnerEmail:          c.OwnerEmail,
		FlightNumber:        c.FlightNumber,
		LuggageQuantity:     c.LuggageQuantity,
		LuggageDescriptions: c.LuggageDescriptions,
		PickupLocation:      c.PickupLocation,
		PickupGeo:           geometry(c.PickupGeo),
		CurrentLocation:     c.CurrentLocation,
		CurrentGeo:          geometry(c.CurrentGeo),
		DropOffLocation:     c.DropOffLocation,
		DropOffGeo:          geometry(c.DropOffGeo),
		DeliveryID:          c.DeliveryID,
		AirlineID:           c.AirlineID,
		DeliveryCharge:      c.DeliveryCharge,
		Surcharge:           c.Surcharge,
		Discount:            c.Discount,
		Total:               c.Total(),
		PricingStatus:       c.PricingStatus,
		Remarks:             c.Remarks,
		Proofs:              c.Proofs,
		CreatedAt:           c.CreatedAt,
		AcceptedAt:          c.AcceptedAt,
		PickupAt:            c.PickupAt,
		DeliveredAt:         c.DeliveredAt,
		CancelledAt:         c.CancelledAt,
	}
}

func viewContracts(cs []contract.Contract) []contractView {
	out := make([]contractView, 0, len(cs))
	for i := range cs {
		out = append(out, viewContract(&cs[i]))
	}
	return out
}

type createContractReq struct {
	OwnerFirstName      string   `json:"owner_first_name"`
	OwnerMiddleInitial  string   `json:"owner_middle_initial"`
	OwnerLastName       string   `json:"owner_last_name"`
	OwnerContact        string   `json:"owner_contact"`
	OwnerEmail          string   `json:"owner_email"`
	FlightNumber        string   `json:"flight_number"`
	LuggageQuantity     int      `json:"luggage_quantity"`
	LuggageDescriptions []string `json:"luggage_descriptions"`
	PickupLocation      string   `json:"pickup_location"`
	PickupGeo           any      `json:"pickup_location_geo"`
	DropOffLocation     string   `json:"drop_off_location"`
	DropOffGeo          any      `json:"drop_off_location_geo"`
	Surcharge           int64    `json:"delivery_surcharge"`
	Discount            int64    `json:"delivery_discount"`
}

// optionalGeo accepts any geometry encoding geo.Parse understands.
func optionalGeo(v any) (*types.Point, bool) {
	if v == nil {
		return nil, true
	}
	p, ok := geo.Parse(v)
	if !ok {
		return nil, false
	}
	return &p, true
}

func (h *ContractHandler) Create(c *gin.Context) {
	var req createContractReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	pickup, ok := optionalGeo(req.PickupGeo)
	if !ok {
		writeError(c, http.StatusBadRequest, "invalid pickup_location_geo")
		return
	}
	dropOff, ok := optionalGeo(req.DropOffGeo)
	if !ok {
		writeError(c, http.StatusBadRequest, "invalid drop_off_location_geo")
		return
	}
	ct, err := h.contracts.Create(c.Request.Context(), contract.CreateCommand{
		Actor:               actor(c),
		OwnerFirstName:      req.OwnerFirstName,
		OwnerMiddleInitial:  req.OwnerMiddleInitial,
		OwnerLastName:       req.OwnerLastName,
		OwnerContact:        req.OwnerContact,
		OwnerEmail:          req.OwnerEmail,
		FlightNumber:        req.FlightNumber,
		LuggageQuantity:     req.LuggageQuantity,
		LuggageDescriptions: req.LuggageDescriptions,
		PickupLocation:      req.PickupLocation,
		PickupGeo:           pickup,
		DropOffLocation:     req.DropOffLocation,
		DropOffGeo:          dropOff,
		Surcharge:           req.Surcharge,
		Discount:            req.Discount,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, viewContract(ct))
}

// List accepts ?status=3,4 and ?limit=N. Scoping by caller happens in the service.
func (h *ContractHandler) List(c *gin.Context) {
	var f contract.Filter
	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || !contract.Status(n).Valid() {
				writeError(c, http.StatusBadRequest, "invalid status")
				return
			}
			f.Statuses = append(f.Statuses, contract.Status(n))
		}
	}
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		writeError(c, http.StatusBadRequest, "invalid limit")
		return
	}
	f.Limit = limit

	cs, err := h.contracts.List(c.Request.Context(), actor(c), f)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, viewContracts(cs))
}

func (h *ContractHandler) ListPending(c *gin.Context) {
	cs, err := h.contracts.ListPending(c.Request.Context(), actor(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, viewContracts(cs))
}

func (h *ContractHandler) Get(c *gin.Context) {
	id, ok := h.contractID(c)
	if !ok {
		return
	}
	ct, err := h.contracts.Get(c.Request.Context(), actor(c), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, viewContract(ct))
}

type eventView struct {
	From      contract.Status `json:"from_status_id"`
	To        contract.Status `json:"to_status_id"`
	Action    contract.Action `json:"action"`
	ActorRole types.Role      `json:"actor_role"`
	ActorID   *types.ID       `json:"actor_id"`
	Remarks   string          `json:"remarks,omitempty"`
	At        time.Time       `json:"created_at"`
}

func (h *ContractHandler) History(c *gin.Context) {
	id, ok := h.contractID(c)
	if !ok {
		return
	}
	events, err := h.contracts.History(c.Request.Context(), actor(c), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	out := make([]eventView, 0, len(events))
	for _, e := range events {
		out = append(out, eventView{
			From: e.FromStatus, To: e.ToStatus, Action: e.Action,
			ActorRole: e.ActorRole, ActorID: e.ActorID, Remarks: e.Remarks, At: e.CreatedAt,
		})
	}
	writeJSON(c, http.StatusOK, out)
}

type actionReq struct {
	Remarks   string   `json:"remarks"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// Act runs one action. Proof images come as multipart files named after
// their kind (pickup_proof, delivery_proof, ...); remarks and position may
// come as form fields or JSON.
func (h *ContractHandler) Act(c *gin.Context) {
	id, ok := h.contractID(c)
	if !ok {
		return
	}
	action := contract.Action(c.Param("action"))
	if _, known := contract.Rules[action]; !known || action == contract.ActionCreate {
		writeError(c, http.StatusNotFound, "unknown action")
		return
	}

	cmd := contract.ActionCommand{ContractID: id, Actor: actor(c)}
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.Request.ParseMultipartForm(maxActionUpload); err != nil {
			writeError(c, http.StatusBadRequest, "invalid multipart form")
			return
		}
		cmd.Remarks = c.PostForm("remarks")
		if lat, lng := c.PostForm("latitude"), c.PostForm("longitude"); lat != "" || lng != "" {
			p, ok := parsePoint(lat, lng)
			if !ok {
				writeError(c, http.StatusBadRequest, "invalid position")
				return
			}
			cmd.Position = p
		}
		proofs, err := readProofs(c)
		if err != nil {
			writeError(c, http.StatusBadRequest, err.Error())
			return
		}
		cmd.Proofs = proofs
	} else if c.Request.ContentLength != 0 {
		var req actionReq
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid json")
			return
		}
		cmd.Remarks = req.Remarks
		if req.Latitude != nil || req.Longitude != nil {
			if req.Latitude == nil || req.Longitude == nil {
				writeError(c, http.StatusBadRequest, "invalid position")
				return
			}
			p, ok := pointOf(*req.Latitude, *req.Longitude)
			if !ok {
				writeError(c, http.StatusBadRequest, "invalid position")
				return
			}
			cmd.Position = p
		}
	}

	ct, err := h.contracts.Apply(c.Request.Context(), action, cmd)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, viewContract(ct))
}

func readProofs(c *gin.Context) (map[contract.ProofKind]contract.Proof, error) {
	out := map[contract.ProofKind]contract.Proof{}
	for _, kind := range proofKinds {
		fh, err := c.FormFile(string(kind))
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			return nil, err
		}
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, err
		}
		out[kind] = contract.Proof{ContentType: fh.Header.Get("Content-Type"), Data: data}
	}
	return out, nil
}

// Vicinity reports whether ?action= would pass the gate at ?lat=&lng= (or
// the caller's last fix when omitted).
func (h *ContractHandler) Vicinity(c *gin.Context) {
	id, ok := h.contractID(c)
	if !ok {
		return
	}
	p, ok := queryPoint(c)
	if !ok {
		writeError(c, http.StatusBadRequest, "invalid position")
		return
	}
	d, err := h.contracts.CheckVicinity(c.Request.Context(), actor(c), id, contract.Action(c.Query("action")), p)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, d)
}

// ETA estimates the drive from the contract's current location to its drop-off.
func (h *ContractHandler) ETA(c *gin.Context) {
	if h.routes == nil {
		writeError(c, http.StatusNotImplemented, "route estimates are not configured")
		return
	}
	id, ok := h.contractID(c)
	if !ok {
		return
	}
	ct, err := h.contracts.Get(c.Request.Context(), actor(c), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if ct.Status != contract.StatusInTransit || ct.CurrentGeo == nil || ct.DropOffGeo == nil {
		writeError(c, http.StatusConflict, "no live position for this contract")
		return
	}
	est, err := h.routes.Estimate(c.Request.Context(), *ct.CurrentGeo, *ct.DropOffGeo)
	if err != nil {
		writeError(c, http.StatusBadGateway, "route estimate failed")
		return
	}
	writeJSON(c, http.StatusOK, est)
}

func (h *ContractHandler) contractID(c *gin.Context) (types.ID, bool) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid contract id")
		return "", false
	}
	return types.ID(id), true
}
