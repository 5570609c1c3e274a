package ops

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"

	"github.com/hpungsan/sitesmith/internal/config"
	"github.com/hpungsan/sitesmith/internal/errors"
	"github.com/hpungsan/sitesmith/internal/sandbox"
	"github.com/hpungsan/sitesmith/internal/store"
)

// Export formats.
const (
	FormatHTML     = "html"     // complete deployable document
	FormatBody     = "body"     // stored markup as is
	FormatMarkdown = "markdown" // text content as CommonMark
)

// ExportInput contains parameters for the ExportFrame operation.
type ExportInput struct {
	FrameID string
	Format  string // optional, default: html
	Path    string // optional, default: ~/.sitesmith/exports/<frame>-<timestamp>.<ext>
}

// ExportOutput contains the result of the ExportFrame operation.
type ExportOutput struct {
	Path       string `json:"path"`
	Format     string `json:"format"`
	Bytes      int    `json:"bytes"`
	ExportedAt int64  `json:"exported_at"`
}

var markdownConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

// Render produces the export content of markup in format.
func Render(markup, format string) (string, error) {
	switch format {
	case "", FormatHTML:
		return sandbox.WrapDocument(markup), nil
	case FormatBody:
		return markup, nil
	case FormatMarkdown:
		md, err := markdownConverter.ConvertString(markup)
		if err != nil {
			return "", errors.NewInternal(fmt.Errorf("convert to markdown: %w", err))
		}
		return strings.TrimSpace(md) + "\n", nil
	default:
		return "", errors.NewInvalidRequest(fmt.Sprintf("format must be one of %s, %s, %s", FormatHTML, FormatBody, FormatMarkdown))
	}
}

func formatExtensions(format string) []string {
	if format == FormatMarkdown {
		return MarkdownExtensions
	}
	return HTMLExtensions
}

// ExportFrame writes the markup of a frame to a file.
func ExportFrame(ctx context.Context, st store.Store, cfg *config.Config, input ExportInput) (*ExportOutput, error) {
	frameID, err := requireID("frame", input.FrameID)
	if err != nil {
		return nil, err
	}
	format := strings.ToLower(strings.TrimSpace(input.Format))
	if format == "" {
		format = FormatHTML
	}
	if _, err := Render("", format); err != nil {
		return nil, err
	}

	now := time.Now()
	exportPath := input.Path
	if exportPath == "" {
		exportPath, err = defaultExportPath(frameID, format, now)
		if err != nil {
			return nil, err
		}
	}
	// Default paths are validated too; the frame id is caller input.
	if err := ValidatePath(exportPath, PathCheckWrite, cfg, formatExtensions(format)...); err != nil {
		return nil, err
	}

	snap, err := st.LoadFrame(ctx, frameID)
	if err != nil {
		return nil, err
	}
	if !snap.Frame.HasMarkup() {
		return nil, errors.NewNoMarkup(frameID)
	}
	content, err := Render(*snap.Frame.Markup, format)
	if err != nil {
		return nil, err
	}

	if err := writeFileAtomic(ctx, exportPath, []byte(content)); err != nil {
		return nil, err
	}
	return &ExportOutput{
		Path:       exportPath,
		Format:     format,
		Bytes:      len(content),
		ExportedAt: now.Unix(),
	}, nil
}

// writeFileAtomic writes data to a temp file next to path, then renames it
// into place. An existing file at path survives any failure.
func writeFileAtomic(ctx context.Context, path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := path + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	if err := ctx.Err(); err != nil {
		return errors.NewInternal(err)
	}
	if _, err := file.Write(data); err != nil {
		return errors.NewInternal(err)
	}
	if err := file.Sync(); err != nil {
		return errors.NewInternal(err)
	}
	// Close before rename (required on Windows).
	if err := file.Close(); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlink planted at the destination.
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest("export path must not be a symlink")
	}

	// Windows refuses to rename over an existing file. Fail rather than
	// delete-then-rename, which could lose the original.
	if err := os.Rename(tempPath, path); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(path); statErr == nil {
				return errors.NewInvalidRequest("export destination already exists; choose a new path or delete the existing file")
			}
		}
		return errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}
	success = true
	return nil
}

// defaultExportPath builds ~/.sitesmith/exports/<frame>-<timestamp>.<ext>.
func defaultExportPath(frameID, format string, now time.Time) (string, error) {
	dir, err := DefaultExportsDir()
	if err != nil {
		return "", err
	}
	ext := ".html"
	if format == FormatMarkdown {
		ext = ".md"
	}
	name := fmt.Sprintf("%s-%s%s", SanitizeForFilename(strings.ToLower(frameID)), now.Format("2006-01-02T150405"), ext)
	return filepath.Join(dir, name), nil
}
