package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/sitesmith/internal/config"
	"github.com/hpungsan/sitesmith/internal/editor"
	"github.com/hpungsan/sitesmith/internal/errors"
	"github.com/hpungsan/sitesmith/internal/imagekit"
	"github.com/hpungsan/sitesmith/internal/ops"
	"github.com/hpungsan/sitesmith/internal/store"
	"github.com/hpungsan/sitesmith/internal/web"
)

// maxStdinBytes bounds prompts and markup read from stdin.
const maxStdinBytes = 1 << 20

// appEnv is what the commands run against. It is nil for --help and
// --version, which need no store.
type appEnv struct {
	store    store.Store
	cfg      *config.Config
	sessions *editor.Registry
	logger   *slog.Logger
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(env *appEnv) *cli.App {
	app := &cli.App{
		Name:    "sitesmith",
		Usage:   "Build websites by chatting with a model",
		Version: Version,
		Commands: []*cli.Command{
			createCmd(env),
			fetchCmd(env),
			listCmd(env),
			framesCmd(env),
			generateCmd(env),
			editCmd(env),
			exportCmd(env),
			importCmd(env),
			deployCmd(env),
			deploymentsCmd(env),
			serveCmd(env),
		},
		// Style values such as rgb(1, 2, 3) contain commas.
		DisableSliceFlagSeparator: true,
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// createCmd creates the create command.
func createCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "create",
		Usage:     "Create a project from a prompt (argument or stdin)",
		ArgsUsage: "[prompt]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Project name (default: first line of the prompt)"},
			&cli.BoolFlag{Name: "generate", Aliases: []string{"g"}, Usage: "Answer the prompt right away"},
		},
		Action: func(c *cli.Context) error {
			prompt, err := promptArg(c)
			if err != nil {
				return outputError(err)
			}
			created, err := ops.CreateProject(c.Context, env.store, ops.CreateProjectInput{Prompt: prompt, Name: c.String("name")})
			if err != nil {
				return outputError(err)
			}
			if !c.Bool("generate") {
				return outputJSON(created)
			}

			s, err := env.sessions.Open(c.Context, created.FrameID)
			if err != nil {
				return outputError(err)
			}
			result, err := s.Resume(c.Context, nil)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{"project": created, "result": result})
		},
	}
}

// fetchCmd creates the fetch command.
func fetchCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Fetch a frame with its transcript",
		ArgsUsage: "<frame-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "no-markup", Usage: "Exclude markup from output"},
		},
		Action: func(c *cli.Context) error {
			input := ops.FetchFrameInput{ID: c.Args().First()}
			if c.Bool("no-markup") {
				includeMarkup := false
				input.IncludeMarkup = &includeMarkup
			}
			output, err := ops.FetchFrame(c.Context, env.store, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// listCmd creates the list command.
func listCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List projects",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Max items"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.ListProjects(c.Context, env.store, ops.ListProjectsInput{Limit: c.Int("limit")})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// framesCmd creates the frames command.
func framesCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "frames",
		Usage: "List frames, most recently updated first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "project", Aliases: []string{"p"}, Usage: "Only frames of this project"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Max items"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.ListFrames(c.Context, env.store, ops.ListFramesInput{
				ProjectID: c.String("project"),
				Limit:     c.Int("limit"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// generateCmd creates the generate command.
func generateCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "generate",
		Usage:     "Send a prompt for a frame (argument or stdin); without one, answer its first message",
		ArgsUsage: "<frame-id> [prompt]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "stream", Usage: "Print generated code to stderr as it arrives"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("frame ID is required"))
			}
			s, err := env.sessions.Open(c.Context, c.Args().First())
			if err != nil {
				return outputError(err)
			}

			prompt := strings.Join(c.Args().Tail(), " ")
			if prompt == "" && stdinHasData() {
				if prompt, err = readStdin(); err != nil {
					return outputError(err)
				}
			}
			var onCode func(string)
			if c.Bool("stream") {
				onCode = func(chunk string) { fmt.Fprint(c.App.ErrWriter, chunk) }
			}

			var result *editor.GenerateResult
			if strings.TrimSpace(prompt) == "" {
				result, err = s.Resume(c.Context, onCode)
				if err == nil && result == nil {
					err = errors.NewInvalidRequest("prompt is required; the frame has no unanswered message")
				}
			} else {
				result, err = s.Generate(c.Context, prompt, onCode)
			}
			if err != nil {
				return outputError(err)
			}
			return outputJSON(result)
		},
	}
}

// editCmd creates the edit command. Edits apply to the element named by
// --select, in flag order: style, text, attributes, image, upload.
func editCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "edit",
		Usage:     "Edit one element of a frame",
		ArgsUsage: "<frame-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "select", Aliases: []string{"s"}, Required: true, Usage: "CSS selector or locator of the element"},
			&cli.StringSliceFlag{Name: "style", Usage: "Inline style property=value (repeatable)"},
			&cli.StringFlag{Name: "text", Usage: "Replace the element text"},
			&cli.StringSliceFlag{Name: "attr", Usage: "Attribute name=value (repeatable)"},
			&cli.StringSliceFlag{Name: "transform", Usage: "Toggle an image transform: resize, smartcrop, upscale, bgremove"},
			&cli.IntFlag{Name: "width", Usage: "Image resize width"},
			&cli.IntFlag{Name: "height", Usage: "Image resize height"},
			&cli.StringFlag{Name: "alt", Usage: "Image alt text"},
			&cli.StringFlag{Name: "radius", Usage: "Image corner radius, e.g. 8px"},
			&cli.StringFlag{Name: "upload", Usage: "Upload a local image as the new source"},
			&cli.BoolFlag{Name: "save", Usage: "Save the frame afterwards"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("frame ID is required"))
			}
			styles, err := parseKeyValues(c.StringSlice("style"))
			if err != nil {
				return outputError(err)
			}
			attrs, err := parseKeyValues(c.StringSlice("attr"))
			if err != nil {
				return outputError(err)
			}
			transforms, err := editor.ParseTransforms(c.StringSlice("transform"))
			if err != nil {
				return outputError(err)
			}

			s, err := env.sessions.Open(c.Context, c.Args().First())
			if err != nil {
				return outputError(err)
			}
			if _, err := s.Select(c.Context, c.String("select")); err != nil {
				return outputError(err)
			}

			in := s.Inspector()
			for _, kv := range styles {
				in.SetStyle(kv[0], kv[1])
			}
			if c.IsSet("text") {
				in.SetText(c.String("text"))
			}
			for _, kv := range attrs {
				in.SetAttribute(kv[0], kv[1])
			}
			if err := applyImageFlags(c, s, transforms); err != nil {
				return outputError(err)
			}

			view, err := s.View(c.Context)
			if err != nil {
				return outputError(err)
			}
			out := map[string]any{"view": view, "saved": false}
			if c.Bool("save") {
				if err := s.Save(c.Context); err != nil {
					return outputError(err)
				}
				out["saved"] = true
			}
			return outputJSON(out)
		},
	}
}

// applyImageFlags runs the image flags of the edit command, if any.
func applyImageFlags(c *cli.Context, s *editor.Session, transforms []imagekit.Transform) error {
	edit := editor.ImageEdit{Toggle: transforms}
	if c.IsSet("width") {
		w := c.Int("width")
		edit.Width = &w
	}
	if c.IsSet("height") {
		h := c.Int("height")
		edit.Height = &h
	}
	if c.IsSet("alt") {
		alt := c.String("alt")
		edit.Alt = &alt
	}
	if c.IsSet("radius") {
		r := c.String("radius")
		edit.BorderRadius = &r
	}
	upload := c.String("upload")
	if len(edit.Toggle) == 0 && edit.Width == nil && edit.Height == nil &&
		edit.Alt == nil && edit.BorderRadius == nil && upload == "" {
		return nil
	}

	img, err := s.RequireImage()
	if err != nil {
		return err
	}
	if upload != "" {
		data, err := os.ReadFile(upload)
		if err != nil {
			if os.IsNotExist(err) {
				return errors.NewFileNotFound(upload)
			}
			return errors.NewInternal(err)
		}
		if _, err := img.Upload(c.Context, data, filepath.Base(upload)); err != nil {
			return err
		}
	}
	return img.Apply(edit)
}

// exportCmd creates the export command.
func exportCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Export the saved markup of a frame to a file",
		ArgsUsage: "<frame-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: ops.FormatHTML, Usage: "html, body or markdown"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output file path (default: ~/.sitesmith/exports/<frame>-<timestamp>.<ext>)"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.ExportFrame(c.Context, env.store, env.cfg, ops.ExportInput{
				FrameID: c.Args().First(),
				Format:  c.String("format"),
				Path:    c.String("output"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// importCmd creates the import command.
func importCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import an .html file as a new frame",
		ArgsUsage: "<path>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "project", Aliases: []string{"p"}, Usage: "Add to this project (default: new project)"},
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Name of the new project"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.ImportFrame(c.Context, env.store, env.cfg, ops.ImportInput{
				Path:      c.Args().First(),
				ProjectID: c.String("project"),
				Name:      c.String("name"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// deployCmd creates the deploy command.
func deployCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "deploy",
		Usage:     "Publish the current page of a frame",
		ArgsUsage: "<frame-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("frame ID is required"))
			}
			s, err := env.sessions.Open(c.Context, c.Args().First())
			if err != nil {
				return outputError(err)
			}
			d, err := s.Deploy(c.Context)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(d)
		},
	}
}

// deploymentsCmd creates the deployments command.
func deploymentsCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "deployments",
		Usage: "List recorded deployments, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "project", Aliases: []string{"p"}, Usage: "Only deployments of this project"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Max items"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.ListDeployments(c.Context, env.store, ops.ListDeploymentsInput{
				ProjectID: c.String("project"),
				Limit:     c.Int("limit"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the editor web UI",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Usage: "Bind address (default from config)"},
			&cli.IntFlag{Name: "port", Usage: "Port (default from config)"},
		},
		Action: func(c *cli.Context) error {
			cfg := *env.cfg
			if c.IsSet("bind") {
				cfg.Bind = c.String("bind")
			}
			if c.IsSet("port") {
				cfg.Port = c.Int("port")
			}
			srv := web.NewServer(env.store, env.sessions, &cfg, Version, env.logger)
			if err := web.Run(srv, env.logger); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return nil
		},
	}
}

// outputJSON writes v to stdout as indented JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if appErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", appErr.Code, appErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// promptArg joins the positional arguments or, without any, reads stdin.
func promptArg(c *cli.Context) (string, error) {
	if c.NArg() > 0 {
		return strings.Join(c.Args().Slice(), " "), nil
	}
	if !stdinHasData() {
		return "", errors.NewInvalidRequest("prompt must be given as an argument or piped via stdin")
	}
	return readStdin()
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads at most maxStdinBytes from stdin.
func readStdin() (string, error) {
	return readLimited(os.Stdin, maxStdinBytes)
}

func readLimited(r io.Reader, limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", errors.NewInternal(err)
	}
	if int64(len(data)) > limit {
		return "", errors.NewInvalidRequest(fmt.Sprintf("stdin exceeds %d bytes", limit))
	}
	return strings.TrimSpace(string(data)), nil
}

// parseKeyValues splits name=value pairs. Values may contain '='.
func parseKeyValues(items []string) ([][2]string, error) {
	out := make([][2]string, 0, len(items))
	for _, item := range items {
		k, v, ok := strings.Cut(item, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("expected name=value, got %q", item))
		}
		out = append(out, [2]string{k, strings.TrimSpace(v)})
	}
	return out, nil
}
