// Package config loads the service configuration from HCL.
//
// The configuration surface is three fixed singleton blocks plus any number
// of labelled source blocks:
//
//	aggregator {
//	  working_dir      = "/home/ci/project"
//	  coalescing_delay = "100ms"
//	}
//
//	server {
//	  listen = ":8090"
//	}
//
//	history {
//	  path = "builds.db"
//	}
//
//	source "socketio" {
//	  url   = "http://runner:3000"
//	  event = "build_event"
//	}
//
// Source block bodies are opaque at this layer: their attributes are decoded
// to cty values and handed to the registered source factory, which owns the
// per-type schema.
package config

import (
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// DefaultListen is the listen address used when no server block is present.
const DefaultListen = ":8090"

// Model is the format-agnostic configuration consumed by the app.
type Model struct {
	Aggregator AggregatorBlock
	Server     ServerBlock
	History    *HistoryBlock
	Sources    []SourceBlock
}

// AggregatorBlock configures the aggregation core.
type AggregatorBlock struct {
	// WorkingDir is the externally supplied root that diagnostic file paths
	// resolve against.
	WorkingDir string
	// CoalesceDelay is the refresh coalescing window; zero keeps the
	// scheduler default.
	CoalesceDelay time.Duration
	// NoticeBuffer sizes the refresh notice channel; zero keeps the default.
	NoticeBuffer int
}

// ServerBlock configures the consumer-facing HTTP server.
type ServerBlock struct {
	Listen string
}

// HistoryBlock enables build history persistence.
type HistoryBlock struct {
	Path string
}

// SourceBlock is one labelled source declaration with its undecoded options.
type SourceBlock struct {
	Type      string
	Options   map[string]cty.Value
	DeclRange hcl.Range
}

// NewModel returns a model with defaults applied.
func NewModel() *Model {
	return &Model{
		Server: ServerBlock{Listen: DefaultListen},
	}
}
