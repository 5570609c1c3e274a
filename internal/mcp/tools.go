package mcp

import "github.com/mark3labs/mcp-go/mcp"

func frameIDParam() mcp.ToolOption {
	return mcp.WithString("frame_id", mcp.Required(), mcp.Description("Frame ID"))
}

var projectCreateToolDef = mcp.NewTool("project_create",
	mcp.WithDescription("Create a project with one frame. The prompt is stored as the first user message; "+
		"call frame_generate without a prompt to answer it."),
	mcp.WithString("prompt", mcp.Required(), mcp.Description("Description of the website to build")),
	mcp.WithString("name", mcp.Description("Project name (default: first line of the prompt)")),
)

var projectListToolDef = mcp.NewTool("project_list",
	mcp.WithDescription("List projects, newest first."),
	mcp.WithNumber("limit", mcp.Description("Max items (default 20, max 100)")),
)

var frameFetchToolDef = mcp.NewTool("frame_fetch",
	mcp.WithDescription("Fetch a frame with its chat transcript."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Frame ID")),
	mcp.WithBoolean("include_markup", mcp.Description("Include the page markup (default true)")),
)

var frameListToolDef = mcp.NewTool("frame_list",
	mcp.WithDescription("List frames, most recently updated first."),
	mcp.WithString("project_id", mcp.Description("Only frames of this project")),
	mcp.WithNumber("limit", mcp.Description("Max items (default 20, max 100)")),
)

var frameGenerateToolDef = mcp.NewTool("frame_generate",
	mcp.WithDescription("Send a prompt to the page generator. A reply with an html code block replaces the page; "+
		"any other reply is conversational. Without a prompt, answers a new frame's first message."),
	frameIDParam(),
	mcp.WithString("prompt", mcp.Description("What to build or change")),
)

var framePreviewToolDef = mcp.NewTool("frame_preview",
	mcp.WithDescription("Return the live preview document of a frame, including unsaved edits."),
	frameIDParam(),
)

var frameSaveToolDef = mcp.NewTool("frame_save",
	mcp.WithDescription("Save the edited page as the frame markup."),
	frameIDParam(),
)

var frameExportToolDef = mcp.NewTool("frame_export",
	mcp.WithDescription("Export the saved markup of a frame to a file."),
	frameIDParam(),
	mcp.WithString("format", mcp.Enum("html", "body", "markdown"), mcp.Description("Export format (default html)")),
	mcp.WithString("path", mcp.Description("Destination file (default ~/.sitesmith/exports/<frame>-<timestamp>.<ext>)")),
)

var frameImportToolDef = mcp.NewTool("frame_import",
	mcp.WithDescription("Import an .html file as a new frame."),
	mcp.WithString("path", mcp.Required(), mcp.Description("Source .html or .htm file")),
	mcp.WithString("project_id", mcp.Description("Add to this project (default: new project)")),
	mcp.WithString("name", mcp.Description("Name of the new project")),
)

var frameDeployToolDef = mcp.NewTool("frame_deploy",
	mcp.WithDescription("Publish the current page of a frame and record the deployment."),
	frameIDParam(),
)

var frameDeploymentsToolDef = mcp.NewTool("frame_deployments",
	mcp.WithDescription("List recorded deployments, newest first."),
	mcp.WithString("project_id", mcp.Description("Only deployments of this project")),
	mcp.WithNumber("limit", mcp.Description("Max items (default 20, max 100)")),
)

var elementSelectToolDef = mcp.NewTool("element_select",
	mcp.WithDescription("Select an element of the page for editing and return its tag, text, styles and attributes."),
	frameIDParam(),
	mcp.WithString("target", mcp.Required(), mcp.Description(`CSS selector or locator such as id("hero") or /html/body/div[2]`)),
)

var elementDeselectToolDef = mcp.NewTool("element_deselect",
	mcp.WithDescription("Clear the current selection."),
	frameIDParam(),
)

var elementStyleToolDef = mcp.NewTool("element_style",
	mcp.WithDescription("Set inline styles on the selected element. Keys are camelCase or kebab-case CSS properties."),
	frameIDParam(),
	mcp.WithObject("styles", mcp.Required(), mcp.Description(`Property to value, e.g. {"color": "#112233"}`)),
)

var elementTextToolDef = mcp.NewTool("element_text",
	mcp.WithDescription("Replace the direct text of the selected element."),
	frameIDParam(),
	mcp.WithString("text", mcp.Required(), mcp.Description("New text")),
)

var elementAttributeToolDef = mcp.NewTool("element_attribute",
	mcp.WithDescription("Set an attribute on the selected element."),
	frameIDParam(),
	mcp.WithString("name", mcp.Required(), mcp.Description("Attribute name")),
	mcp.WithString("value", mcp.Required(), mcp.Description("Attribute value")),
)

var imageTransformToolDef = mcp.NewTool("image_transform",
	mcp.WithDescription("Adjust the selected image: toggle transforms, resize, alt text, corner radius."),
	frameIDParam(),
	mcp.WithArray("toggle", mcp.Description("Transforms to toggle: resize, smartcrop, upscale, bgremove"),
		mcp.Items(map[string]any{"type": "string"})),
	mcp.WithNumber("width", mcp.Description("Resize width in pixels")),
	mcp.WithNumber("height", mcp.Description("Resize height in pixels")),
	mcp.WithString("alt", mcp.Description("Alt text")),
	mcp.WithString("border_radius", mcp.Description("Corner radius, e.g. 8px")),
)

var imageUploadToolDef = mcp.NewTool("image_upload",
	mcp.WithDescription("Upload an image and use it as the source of the selected image."),
	frameIDParam(),
	mcp.WithString("data", mcp.Required(), mcp.Description("Base64-encoded file content")),
	mcp.WithString("file_name", mcp.Required(), mcp.Description("File name, e.g. hero.png")),
)
