package grouping

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/vk/buildtreego/internal/event"
	"github.com/vk/buildtreego/internal/node"
	"github.com/vk/buildtreego/internal/nodestore"
)

// SourceRoots resolves the source root directory that contains a file.
// internal/srcroots provides the marker-file implementation; tests stub it.
type SourceRoots interface {
	Lookup(filePath string) (root string, ok bool)
}

// Resolver synthesizes grouping parent nodes for message events and applies
// severity escalation along the ownership chain. Lookup-or-create goes
// through the node store, so re-delivery of the same grouping level is
// idempotent.
type Resolver struct {
	store      nodestore.Store
	workingDir string
	roots      SourceRoots
}

// NewResolver creates a resolver rooted at workingDir. The working directory
// is normalized to slash form once; event file paths are normalized per
// lookup. roots may be nil, which skips the source-root level.
func NewResolver(store nodestore.Store, workingDir string, roots SourceRoots) *Resolver {
	return &Resolver{
		store:      store,
		workingDir: path.Clean(strings.TrimSuffix(toSlash(workingDir), "/")),
		roots:      roots,
	}
}

// ResolveParents returns the node a message event should attach under,
// synthesizing the group / working-directory / source-root / file chain as
// needed. An empty group name produces no group level: the message (or its
// file chain) attaches directly to the parent. A message without a parent
// identifier gets no synthesized chain and the call returns nil.
func (r *Resolver) ResolveParents(ctx context.Context, e event.Event, parent *node.Node) *node.Node {
	if e.ParentID == "" || e.Msg == nil {
		return nil
	}
	payload := e.Msg

	parentID := ""
	if parent != nil {
		parentID = parent.ID()
	}

	deepest := parent
	if payload.Group != "" {
		group := r.getOrCreate(ctx, Key{Group: payload.Group, Scope: e.ParentID}, parentID, payload.Group, e.Time)
		group.MergeSeverity(payload.Severity)
		deepest = group
	}

	if payload.File != nil {
		fileParentID := parentID
		if deepest != nil {
			fileParentID = deepest.ID()
		}
		deepest = r.resolveFileLevels(ctx, payload, fileParentID, e.Time)
	}
	if deepest == nil {
		return nil
	}

	// Error and warning diagnostics escalate through every ancestor: counters
	// for the subtree summaries and a max-severity merge at each level.
	if payload.Severity.WorseThan(event.SeverityInfo) {
		for n := deepest; n != nil; {
			n.ReportChildSeverity(payload.Severity)
			n.MergeSeverity(payload.Severity)
			if n.ParentID() == "" {
				break
			}
			p, ok := r.store.Get(ctx, n.ParentID())
			if !ok {
				break
			}
			n = p
		}
	}
	return deepest
}

// resolveFileLevels adds the working-directory, source-root and file nodes
// beneath parentID for a file-bound diagnostic.
func (r *Resolver) resolveFileLevels(ctx context.Context, payload *event.MessagePayload, parentID string, at time.Time) *node.Node {
	filePath := path.Clean(toSlash(payload.File.Path))
	parentsPath := ""

	if r.workingDir != "" && r.workingDir != "." {
		if _, ok := relPath(r.workingDir, filePath); ok {
			wd := r.getOrCreate(ctx, Key{Group: payload.Group, Scope: r.workingDir}, parentID, r.workingDir, at)
			parentID = wd.ID()
			parentsPath = r.workingDir
		}
	}

	if r.roots != nil {
		if root, ok := r.roots.Lookup(filePath); ok {
			root = path.Clean(toSlash(root))
			if rel, ok := relPath(parentsPath, root); ok && rel != "." {
				rootNode := r.getOrCreate(ctx, Key{Group: payload.Group, Scope: root}, parentID, rel, at)
				parentID = rootNode.ID()
				parentsPath = root
			}
		}
	}

	name := filePath
	if rel, ok := relPath(parentsPath, filePath); ok {
		name = rel
	}
	fileNode := r.getOrCreate(ctx, Key{Group: payload.Group, Scope: filePath}, parentID, name, at)
	fileNode.SetFile(payload.File)
	return fileNode
}

// getOrCreate resolves a grouping level through the store. Name and timeline
// are set at creation only; later hits keep the existing node untouched.
func (r *Resolver) getOrCreate(ctx context.Context, key Key, parentID, name string, at time.Time) *node.Node {
	n, _ := r.store.GetOrCreate(ctx, key.ID(), func() *node.Node {
		created := node.New(key.ID(), parentID)
		created.SetName(name)
		created.SetTimes(at, at)
		return created
	})
	return n
}

// relPath returns target relative to base when target sits under base.
func relPath(base, target string) (string, bool) {
	if base == "" || base == "." {
		return "", false
	}
	if base == target {
		return ".", true
	}
	if strings.HasPrefix(target, base+"/") {
		return target[len(base)+1:], true
	}
	return "", false
}

func toSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
