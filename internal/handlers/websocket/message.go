package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"

	"github.com/Martin-Hayot/live-auction-server/pkg/errors"
	"github.com/Martin-Hayot/live-auction-server/pkg/protocol"
	"github.com/charmbracelet/log"
)

// ParseMessage validates and parses incoming messages.
func ParseMessage(rawMessage []byte) (*protocol.Request, error) {
	var req protocol.Request
	if err := json.Unmarshal(rawMessage, &req); err != nil {
		return nil, err
	}
	if req.Type == "" {
		return nil, fmt.Errorf("missing message type")
	}
	return &req, nil
}

// correlationOf recovers the correlation id of a frame that failed ParseMessage, so the peer can
// still match the failure. It is nil unless the frame is a JSON object with a string id.
func correlationOf(rawMessage []byte) *string {
	var envelope struct {
		CorrelationID string `json:"correlationId"`
	}
	if err := json.Unmarshal(rawMessage, &envelope); err != nil || envelope.CorrelationID == "" {
		return nil
	}
	return &envelope.CorrelationID
}

// decode unmarshals a request payload into T.
func decode[T any](req protocol.Request) (T, error) {
	var v T
	if len(req.Payload) == 0 {
		return v, errors.New(errors.ErrBadMessageFormat, fmt.Sprintf("Missing payload for %s.", req.Type))
	}
	if err := json.Unmarshal(req.Payload, &v); err != nil {
		return v, &errors.AppError{
			Code:    errors.ErrBadMessageFormat,
			Message: fmt.Sprintf("Invalid payload for %s.", req.Type),
			Err:     err,
		}
	}
	return v, nil
}

// decodeID reads a payload that is a bare positive id.
func decodeID(req protocol.Request) (int64, error) {
	id, err := decode[int64](req)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, errors.New(errors.ErrBadMessageFormat, fmt.Sprintf("Invalid payload for %s.", req.Type))
	}
	return id, nil
}

// HandleMessage answers one inbound frame. It returns false when the session should end.
func (r *Router) HandleMessage(client *Client, rawMessage []byte) bool {
	req, err := ParseMessage(rawMessage)
	if err != nil {
		log.Infof("Invalid message from client %s: %v", client.ID, err)
		r.metrics.RequestsTotal.WithLabelValues("invalid", "protocol_error").Inc()
		client.Reply(protocol.Response{
			Success:       false,
			Message:       "Invalid message format.",
			Code:          errors.ErrBadMessageFormat,
			Type:          protocol.ProtocolError,
			CorrelationID: correlationOf(rawMessage),
		})
		return true
	}

	if req.Type == protocol.Disconnect {
		log.Debugf("Client %s requested disconnect", client.ID)
		r.metrics.RequestsTotal.WithLabelValues(string(req.Type), "ok").Inc()
		return false
	}

	if !client.RateLimiter.Allow() {
		log.Warnf("Rate limit exceeded for client %s", client.ID)
		r.metrics.RequestsTotal.WithLabelValues(r.label(req.Type), "rate_limited").Inc()
		client.Reply(protocol.Fail(req.Type, req.CorrelationID, errors.ErrRateLimited, "Rate limit exceeded."))
		return true
	}

	client.Reply(r.Dispatch(context.Background(), client, *req))
	return true
}

// Dispatch routes req to its handler after the access check and converts the outcome into the
// response for req. A panicking handler yields an internal-error response.
func (r *Router) Dispatch(ctx context.Context, client *Client, req protocol.Request) (resp protocol.Response) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("Handler panicked", "type", req.Type, "client", client.ID, "panic", p, "stack", string(debug.Stack()))
			resp = protocol.Fail(req.Type, req.CorrelationID, errors.ErrInternalServer, "Internal server error")
		}
		r.metrics.RequestsTotal.WithLabelValues(r.label(req.Type), outcome(resp)).Inc()
	}()

	rt, ok := r.routes[req.Type]
	if !ok {
		log.Printf("Unknown message type: %s", req.Type)
		return protocol.Fail(req.Type, req.CorrelationID, errors.ErrUnknownMessageType,
			fmt.Sprintf("Unknown request type: %s", req.Type))
	}

	user, err := rt.access.check(client)
	if err != nil {
		return protocol.Fail(req.Type, req.CorrelationID, errors.CodeOf(err), errors.MessageOf(err))
	}

	message, data, err := rt.handle(ctx, call{client: client, user: user, req: req})
	if err != nil {
		if errors.CodeOf(err) == errors.ErrInternalServer {
			log.Error("Request failed", "type", req.Type, "client", client.ID, "err", err)
		}
		return protocol.Fail(req.Type, req.CorrelationID, errors.CodeOf(err), errors.MessageOf(err))
	}
	return protocol.OK(req.Type, req.CorrelationID, message, data)
}

func (r *Router) label(t protocol.Type) string {
	if _, ok := r.routes[t]; ok {
		return string(t)
	}
	return "unknown"
}

func outcome(resp protocol.Response) string {
	switch {
	case resp.Success:
		return "ok"
	case resp.Code == errors.ErrInternalServer:
		return "error"
	default:
		return "rejected"
	}
}
