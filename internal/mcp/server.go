package mcp

import (
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/sitesmith/internal/config"
	"github.com/hpungsan/sitesmith/internal/editor"
	"github.com/hpungsan/sitesmith/internal/store"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"project_create": {
		def:     projectCreateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleProjectCreate },
	},
	"project_list": {
		def:     projectListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleProjectList },
	},
	"frame_fetch": {
		def:     frameFetchToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleFrameFetch },
	},
	"frame_list": {
		def:     frameListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleFrameList },
	},
	"frame_generate": {
		def:     frameGenerateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleFrameGenerate },
	},
	"frame_preview": {
		def:     framePreviewToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleFramePreview },
	},
	"frame_save": {
		def:     frameSaveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleFrameSave },
	},
	"frame_export": {
		def:     frameExportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleFrameExport },
	},
	"frame_import": {
		def:     frameImportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleFrameImport },
	},
	"frame_deploy": {
		def:     frameDeployToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleFrameDeploy },
	},
	"frame_deployments": {
		def:     frameDeploymentsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleFrameDeployments },
	},
	"element_select": {
		def:     elementSelectToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleElementSelect },
	},
	"element_deselect": {
		def:     elementDeselectToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleElementDeselect },
	},
	"element_style": {
		def:     elementStyleToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleElementStyle },
	},
	"element_text": {
		def:     elementTextToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleElementText },
	},
	"element_attribute": {
		def:     elementAttributeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleElementAttribute },
	},
	"image_transform": {
		def:     imageTransformToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleImageTransform },
	},
	"image_upload": {
		def:     imageUploadToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleImageUpload },
	},
}

// AllToolNames returns every tool name, sorted.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates an MCP server with the sitesmith tools registered.
// Tools listed in cfg.DisabledTools are skipped.
func NewServer(st store.Store, sessions *editor.Registry, cfg *config.Config, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"sitesmith",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(st, sessions, cfg)

	disabled := make(map[string]bool, len(cfg.DisabledTools))
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}
	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}
	return s
}

// Run serves the MCP tools over stdio.
func Run(st store.Store, sessions *editor.Registry, cfg *config.Config, version string) error {
	return server.ServeStdio(NewServer(st, sessions, cfg, version))
}
