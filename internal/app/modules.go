package app

import (
	"github.com/vk/buildtreego/internal/registry"
	"github.com/vk/buildtreego/modules/jsonl"
	"github.com/vk/buildtreego/modules/socketio"
)

// coreModules is the definitive list of all source modules that are compiled
// into the buildtreego binary.
var coreModules = []registry.Module{
	&jsonl.Module{},
	&socketio.Module{},
}
