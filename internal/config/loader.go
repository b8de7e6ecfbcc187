package config

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/buildtreego/internal/ctxlog"
)

// rootSchema describes the top-level blocks the loader accepts.
var rootSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "aggregator"},
		{Type: "server"},
		{Type: "history"},
		{Type: "source", LabelNames: []string{"type"}},
	},
}

type aggregatorSchema struct {
	WorkingDir    string `hcl:"working_dir,optional"`
	CoalesceDelay string `hcl:"coalescing_delay,optional"`
	NoticeBuffer  int    `hcl:"notice_buffer,optional"`
}

type serverSchema struct {
	Listen string `hcl:"listen,optional"`
}

type historySchema struct {
	Path string `hcl:"path"`
}

// Loader parses HCL configuration files into the agnostic model.
type Loader struct {
	parser *hclparse.Parser
}

// NewLoader creates a fresh loader.
func NewLoader() *Loader {
	return &Loader{parser: hclparse.NewParser()}
}

// Load reads every .hcl file under the given paths (files or directories)
// and merges them into one model. Duplicate singleton blocks across the
// whole set are a startup error.
func (l *Loader) Load(ctx context.Context, paths ...string) (*Model, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := collectFiles(paths)
	if err != nil {
		return nil, err
	}
	logger.Debug("Configuration files collected.", "count", len(files))

	var blocks []*hcl.Block
	for _, file := range files {
		parsed, diags := l.parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("parse %s: %w", file, diags)
		}
		content, diags := parsed.Body.Content(rootSchema)
		if diags.HasErrors() {
			return nil, fmt.Errorf("decode %s: %w", file, diags)
		}
		blocks = append(blocks, content.Blocks...)
	}

	model := NewModel()
	if err := l.decodeBlocks(model, blocks); err != nil {
		return nil, err
	}
	logger.Debug("Configuration loaded and translated into unified model.",
		"sources", len(model.Sources), "history_enabled", model.History != nil)
	return model, nil
}

func (l *Loader) decodeBlocks(model *Model, blocks []*hcl.Block) error {
	aggBlock, err := findUniqueBlock(blocks, "aggregator")
	if err != nil {
		return err
	}
	if aggBlock != nil {
		var s aggregatorSchema
		if diags := gohcl.DecodeBody(aggBlock.Body, nil, &s); diags.HasErrors() {
			return fmt.Errorf("aggregator block: %w", diags)
		}
		model.Aggregator.WorkingDir = s.WorkingDir
		model.Aggregator.NoticeBuffer = s.NoticeBuffer
		if s.CoalesceDelay != "" {
			d, err := time.ParseDuration(s.CoalesceDelay)
			if err != nil {
				return fmt.Errorf("aggregator block: invalid coalescing_delay %q: %w", s.CoalesceDelay, err)
			}
			model.Aggregator.CoalesceDelay = d
		}
	}

	srvBlock, err := findUniqueBlock(blocks, "server")
	if err != nil {
		return err
	}
	if srvBlock != nil {
		var s serverSchema
		if diags := gohcl.DecodeBody(srvBlock.Body, nil, &s); diags.HasErrors() {
			return fmt.Errorf("server block: %w", diags)
		}
		if s.Listen != "" {
			model.Server.Listen = s.Listen
		}
	}

	histBlock, err := findUniqueBlock(blocks, "history")
	if err != nil {
		return err
	}
	if histBlock != nil {
		var s historySchema
		if diags := gohcl.DecodeBody(histBlock.Body, nil, &s); diags.HasErrors() {
			return fmt.Errorf("history block: %w", diags)
		}
		model.History = &HistoryBlock{Path: s.Path}
	}

	for _, block := range blocks {
		if block.Type != "source" {
			continue
		}
		src := SourceBlock{
			Type:      block.Labels[0],
			DeclRange: block.DefRange,
		}
		opts, err := bodyAttributes(block.Body)
		if err != nil {
			return fmt.Errorf("source %q block: %w", src.Type, err)
		}
		src.Options = opts
		model.Sources = append(model.Sources, src)
	}
	return nil
}

func collectFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("config path %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(path, ".hcl") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scan config directory %s: %w", p, err)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl configuration files found in %v", paths)
	}
	return files, nil
}
