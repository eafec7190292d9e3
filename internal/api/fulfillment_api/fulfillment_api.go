package fulfillment_api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BearBump/ShipBox/internal/integrations/marketplace"
	"github.com/BearBump/ShipBox/internal/models"
	"github.com/BearBump/ShipBox/internal/services/deadline"
	"github.com/BearBump/ShipBox/internal/services/labels"
	"github.com/pkg/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type LabelCreator interface {
	CreateLabels(ctx context.Context, req labels.Request) models.LabelResult
}

type ShipByCalculator interface {
	ComputeShipBy(ctx context.Context, in deadline.Input) (time.Time, bool)
}

// LeadDefaults fill ComputeShipBy requests that leave the lead-time fields empty.
type LeadDefaults struct {
	Mode       deadline.Mode
	StaticDays int
	MaxDays    int
}

type FulfillmentAPI struct {
	store  marketplace.Store
	labels LabelCreator
	shipBy ShipByCalculator
	lead   LeadDefaults
}

func New(store marketplace.Store, lc LabelCreator, shipBy ShipByCalculator, lead LeadDefaults) *FulfillmentAPI {
	return &FulfillmentAPI{store: store, labels: lc, shipBy: shipBy, lead: lead}
}

var _ FulfillmentServer = (*FulfillmentAPI)(nil)

func (a *FulfillmentAPI) GetShipment(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id := stringField(in, "transactionId")
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "transactionId is required")
	}
	tx, err := a.store.GetTransaction(ctx, id)
	if errors.Is(err, marketplace.ErrNotFound) {
		return nil, status.Errorf(codes.NotFound, "transaction %s not found", id)
	}
	if err != nil {
		return nil, status.Error(codes.Unavailable, err.Error())
	}

	out := map[string]any{
		"transactionId": tx.ID,
		"version":       tx.Version,
		"outboundState": string(tx.LegState(models.LegOutbound)),
		"returnState":   string(tx.LegState(models.LegReturn)),
	}
	for _, key := range []string{models.KeyOutbound, models.KeyReturn, models.KeyShippingNotification, models.KeyLastTrackingStatus} {
		if v, ok := tx.ProtectedData[key]; ok {
			out[key] = v
		}
	}
	if tx.BookingStart != nil {
		out["bookingStart"] = tx.BookingStart.Format(time.RFC3339)
	}
	return toStruct(out)
}

type shipByReq struct {
	BookingStart   string `json:"bookingStart"`
	Mode           string `json:"mode"`
	LeadDaysStatic *int   `json:"leadDaysStatic"`
	LeadDaysMax    int    `json:"leadDaysMax"`
	OriginZip      string `json:"originZip"`
	DestZip        string `json:"destZip"`
}

func (a *FulfillmentAPI) ComputeShipBy(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req shipByReq
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	input := deadline.Input{
		BookingStart:   req.BookingStart,
		Mode:           deadline.Mode(req.Mode),
		LeadDaysStatic: a.lead.StaticDays,
		LeadDaysMax:    req.LeadDaysMax,
		OriginZip:      req.OriginZip,
		DestZip:        req.DestZip,
	}
	if input.Mode == "" {
		input.Mode = a.lead.Mode
	}
	if req.LeadDaysStatic != nil {
		input.LeadDaysStatic = *req.LeadDaysStatic
	}
	if input.LeadDaysMax <= 0 {
		input.LeadDaysMax = a.lead.MaxDays
	}

	shipBy, ok := a.shipBy.ComputeShipBy(ctx, input)
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "bookingStart is missing or invalid")
	}
	return toStruct(map[string]any{
		"shipBy": shipBy.Format(time.RFC3339),
		"date":   shipBy.Format(time.DateOnly),
	})
}

type createLabelsReq struct {
	TransactionID string          `json:"transactionId"`
	Provider      models.Address  `json:"provider"`
	Customer      models.Address  `json:"customer"`
	ReturnAddress *models.Address `json:"returnAddress"`
	Parcel        *models.Parcel  `json:"parcel"`
	BookingStart  string          `json:"bookingStart"`
	LenderPhone   string          `json:"lenderPhone"`
}

// CreateLabels is the operator-initiated re-attempt. Business failures come back as a result
// with success=false, not as an RPC error.
func (a *FulfillmentAPI) CreateLabels(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req createLabelsReq
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	res := a.labels.CreateLabels(ctx, labels.Request{
		TransactionID: req.TransactionID,
		Provider:      req.Provider,
		Customer:      req.Customer,
		ReturnAddress: req.ReturnAddress,
		Parcel:        req.Parcel,
		BookingStart:  req.BookingStart,
		LenderPhone:   req.LenderPhone,
	})
	return toStruct(res)
}

func stringField(s *structpb.Struct, key string) string {
	if s == nil {
		return ""
	}
	return s.GetFields()[key].GetStringValue()
}

// toStruct goes through JSON so nested slices, typed maps and times become Struct-friendly values.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return s, nil
}

func fromStruct(s *structpb.Struct, dst any) error {
	b, err := json.Marshal(s.AsMap())
	if err != nil {
		return errors.Wrap(err, "marshal request")
	}
	return errors.Wrap(json.Unmarshal(b, dst), "decode request")
}
