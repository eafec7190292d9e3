package fulfillment_api

import (
	"context"
	"io"
	"net/http"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

type gatewayClient interface {
	GetShipment(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	ComputeShipBy(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	CreateLabels(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

// RegisterGateway exposes the RPCs as REST routes on mux:
//
//	GET  /api/v1/shipments/{transactionId}
//	POST /api/v1/ship-by
//	POST /api/v1/shipments/{transactionId}/labels
func RegisterGateway(mux *runtime.ServeMux, c gatewayClient) error {
	routes := []struct {
		method, pattern string
		h               runtime.HandlerFunc
	}{
		{http.MethodGet, "/api/v1/shipments/{transactionId}", func(w http.ResponseWriter, r *http.Request, p map[string]string) {
			in, _ := structpb.NewStruct(map[string]any{"transactionId": p["transactionId"]})
			out, err := c.GetShipment(r.Context(), in)
			writeGateway(w, out, err)
		}},
		{http.MethodPost, "/api/v1/ship-by", func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
			in, err := readStruct(r)
			if err != nil {
				writeGatewayError(w, http.StatusBadRequest, err)
				return
			}
			out, err := c.ComputeShipBy(r.Context(), in)
			writeGateway(w, out, err)
		}},
		{http.MethodPost, "/api/v1/shipments/{transactionId}/labels", func(w http.ResponseWriter, r *http.Request, p map[string]string) {
			in, err := readStruct(r)
			if err != nil {
				writeGatewayError(w, http.StatusBadRequest, err)
				return
			}
			in.Fields["transactionId"] = structpb.NewStringValue(p["transactionId"])
			out, err := c.CreateLabels(r.Context(), in)
			writeGateway(w, out, err)
		}},
	}
	for _, rt := range routes {
		if err := mux.HandlePath(rt.method, rt.pattern, rt.h); err != nil {
			return errors.Wrapf(err, "register %s %s", rt.method, rt.pattern)
		}
	}
	return nil
}

func readStruct(r *http.Request) (*structpb.Struct, error) {
	b, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	in := &structpb.Struct{Fields: map[string]*structpb.Value{}}
	if len(b) == 0 {
		return in, nil
	}
	if err := protojson.Unmarshal(b, in); err != nil {
		return nil, errors.Wrap(err, "decode body")
	}
	if in.Fields == nil {
		in.Fields = map[string]*structpb.Value{}
	}
	return in, nil
}

func writeGateway(w http.ResponseWriter, out *structpb.Struct, err error) {
	if err != nil {
		st := status.Convert(err)
		writeGatewayError(w, runtime.HTTPStatusFromCode(st.Code()), errors.New(st.Message()))
		return
	}
	b, err := protojson.Marshal(out)
	if err != nil {
		writeGatewayError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func writeGatewayError(w http.ResponseWriter, code int, err error) {
	body, _ := protojson.Marshal(structpb.NewStringValue(err.Error()))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(`{"error":`))
	_, _ = w.Write(body)
	_, _ = w.Write([]byte(`}`))
}
