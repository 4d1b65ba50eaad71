// Package connect provides the Connect RPC surface of zonebox.
//
// Messages are google.protobuf.Struct values; request fields are decoded
// with mapstructure so unknown fields are rejected.
package connect

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"
)

// SceneServiceName is the fully-qualified name of the scene service.
const SceneServiceName = "zonebox.v1.SceneService"

// Procedure paths of SceneService.
const (
	ProcedurePushScene       = "/" + SceneServiceName + "/PushScene"
	ProcedureActivateScene   = "/" + SceneServiceName + "/ActivateScene"
	ProcedureUpsertToken     = "/" + SceneServiceName + "/UpsertToken"
	ProcedureRemoveToken     = "/" + SceneServiceName + "/RemoveToken"
	ProcedureUpsertEmitter   = "/" + SceneServiceName + "/UpsertEmitter"
	ProcedureRemoveEmitter   = "/" + SceneServiceName + "/RemoveEmitter"
	ProcedureSetEmitterFlags = "/" + SceneServiceName + "/SetEmitterFlags"
	ProcedureUpsertPlaylist  = "/" + SceneServiceName + "/UpsertPlaylist"
	ProcedureGetStatus       = "/" + SceneServiceName + "/GetStatus"
	ProcedureSubscribe       = "/" + SceneServiceName + "/Subscribe"
)

// NewSceneServiceHandler builds an HTTP handler for the service.
// It returns the path to mount the handler on.
func NewSceneServiceHandler(svc *SceneService, opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()

	mux.Handle(ProcedurePushScene, connect.NewUnaryHandler(ProcedurePushScene, svc.PushScene, opts...))
	mux.Handle(ProcedureActivateScene, connect.NewUnaryHandler(ProcedureActivateScene, svc.ActivateScene, opts...))
	mux.Handle(ProcedureUpsertToken, connect.NewUnaryHandler(ProcedureUpsertToken, svc.UpsertToken, opts...))
	mux.Handle(ProcedureRemoveToken, connect.NewUnaryHandler(ProcedureRemoveToken, svc.RemoveToken, opts...))
	mux.Handle(ProcedureUpsertEmitter, connect.NewUnaryHandler(ProcedureUpsertEmitter, svc.UpsertEmitter, opts...))
	mux.Handle(ProcedureRemoveEmitter, connect.NewUnaryHandler(ProcedureRemoveEmitter, svc.RemoveEmitter, opts...))
	mux.Handle(ProcedureSetEmitterFlags, connect.NewUnaryHandler(ProcedureSetEmitterFlags, svc.SetEmitterFlags, opts...))
	mux.Handle(ProcedureUpsertPlaylist, connect.NewUnaryHandler(ProcedureUpsertPlaylist, svc.UpsertPlaylist, opts...))
	mux.Handle(ProcedureGetStatus, connect.NewUnaryHandler(ProcedureGetStatus, svc.GetStatus, opts...))
	mux.Handle(ProcedureSubscribe, connect.NewServerStreamHandler(ProcedureSubscribe, svc.Subscribe, opts...))

	return "/" + SceneServiceName + "/", mux
}

// SceneServiceClient is a client for SceneService.
type SceneServiceClient struct {
	unary     map[string]*connect.Client[structpb.Struct, structpb.Struct]
	subscribe *connect.Client[structpb.Struct, structpb.Struct]
}

// NewSceneServiceClient creates a client for the service at baseURL.
func NewSceneServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *SceneServiceClient {
	c := &SceneServiceClient{
		unary:     make(map[string]*connect.Client[structpb.Struct, structpb.Struct]),
		subscribe: connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+ProcedureSubscribe, opts...),
	}
	for _, procedure := range []string{
		ProcedurePushScene,
		ProcedureActivateScene,
		ProcedureUpsertToken,
		ProcedureRemoveToken,
		ProcedureUpsertEmitter,
		ProcedureRemoveEmitter,
		ProcedureSetEmitterFlags,
		ProcedureUpsertPlaylist,
		ProcedureGetStatus,
	} {
		c.unary[procedure] = connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+procedure, opts...)
	}
	return c
}

// Call invokes a unary procedure with a JSON-like payload.
func (c *SceneServiceClient) Call(ctx context.Context, procedure string, payload map[string]any) (map[string]any, error) {
	client, ok := c.unary[procedure]
	if !ok {
		return nil, errors.Newf("unknown procedure %s", procedure)
	}
	msg, err := structpb.NewStruct(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode request")
	}
	resp, err := client.CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return nil, err
	}
	return resp.Msg.AsMap(), nil
}

// Subscribe opens the playback notification stream.
func (c *SceneServiceClient) Subscribe(ctx context.Context) (*connect.ServerStreamForClient[structpb.Struct], error) {
	return c.subscribe.CallServerStream(ctx, connect.NewRequest(&structpb.Struct{}))
}
