// Package socketio subscribes to a task runner's socket.io endpoint and
// feeds the received build events into the aggregator.
package socketio

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/zclconf/go-cty/cty"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/vk/buildtreego/internal/ctxlog"
	"github.com/vk/buildtreego/internal/event"
	"github.com/vk/buildtreego/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the source factory with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterSource("socketio", NewSource)
}

// Source is a socket.io client source. It connects to the runner, listens
// for the configured event name and decodes each payload as a build event.
type Source struct {
	url       string
	namespace string
	eventName string
	insecure  bool
}

// NewSource builds the source from its config block options.
func NewSource(opts map[string]cty.Value) (registry.Source, error) {
	rawURL, err := registry.RequireString(opts, "url")
	if err != nil {
		return nil, err
	}
	if _, err := url.Parse(rawURL); err != nil {
		return nil, fmt.Errorf("option \"url\": %w", err)
	}

	namespace, _, err := registry.StringOption(opts, "namespace")
	if err != nil {
		return nil, err
	}
	eventName, ok, err := registry.StringOption(opts, "event")
	if err != nil {
		return nil, err
	}
	if !ok {
		eventName = "build_event"
	}
	insecure, _, err := registry.BoolOption(opts, "insecure_skip_verify")
	if err != nil {
		return nil, err
	}

	return &Source{url: rawURL, namespace: namespace, eventName: eventName, insecure: insecure}, nil
}

// Name implements registry.Source.
func (s *Source) Name() string { return "socketio(" + s.url + ")" }

// Run implements registry.Source. It blocks until the context is cancelled;
// transport errors degrade to logged warnings and the client's own
// reconnect handling.
func (s *Source) Run(ctx context.Context, sink registry.Sink) error {
	logger := ctxlog.FromContext(ctx).With("source", "socketio", "url", s.url, "event", s.eventName)
	logger.Debug("Source starting")
	defer logger.Debug("Source finished")

	parsedURL, err := url.Parse(s.url)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	opts := socket.DefaultOptions()
	if parsedURL.Path != "" {
		opts.SetPath(parsedURL.Path)
	}
	if s.insecure {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(s.namespace, opts)
	defer func() {
		logger.Debug("Disconnecting socket client")
		io.Disconnect()
	}()

	io.On(types.EventName("connect"), func(...any) {
		logger.Info("Connected to task runner", "namespace", s.namespace, "sid", io.Id())
	})

	io.On(types.EventName("connect_error"), func(errs ...any) {
		if len(errs) > 0 {
			logger.Warn("Connection error, client will retry", "error", errs[0])
		}
	})

	io.On(types.EventName(s.eventName), func(data ...any) {
		if len(data) == 0 {
			return
		}
		e, err := decodePayload(data[0])
		if err != nil {
			logger.Warn("Malformed event payload dropped", "error", err)
			return
		}
		sink(ctx, e)
	})

	io.Connect()

	<-ctx.Done()
	return ctx.Err()
}

// decodePayload accepts either a raw JSON string/bytes or an already-parsed
// object (the socket.io parser hands over map[string]any) and decodes it
// into an event.
func decodePayload(payload any) (event.Event, error) {
	var raw []byte
	switch v := payload.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return event.Event{}, fmt.Errorf("re-encode payload: %w", err)
		}
		raw = encoded
	}

	var e event.Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return event.Event{}, err
	}
	return e, nil
}
