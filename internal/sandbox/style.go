package sandbox

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/colornames"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hpungsan/sitesmith/internal/protocol"
)

// The sandbox has no layout engine, so computed values are resolved from
// inline declarations, a small table of utility classes, inheritance and
// the defaults left by the utility CSS reset that every preview loads.

// inherited lists the reported properties that inherit from ancestors.
var inherited = map[string]bool{
	"color":       true,
	"font-size":   true,
	"font-weight": true,
	"font-family": true,
	"text-align":  true,
}

const defaultFontFamily = `ui-sans-serif, system-ui, sans-serif, "Apple Color Emoji", "Segoe UI Emoji", "Segoe UI Symbol", "Noto Color Emoji"`

var initialValues = map[string]string{
	"color":            "rgb(0, 0, 0)",
	"background-color": "rgba(0, 0, 0, 0)",
	"font-size":        "16px",
	"font-weight":      "400",
	"font-family":      defaultFontFamily,
	"padding":          "0px",
	"margin":           "0px",
	"text-align":       "start",
}

// tagDefaults survive the reset.
var tagDefaults = map[atom.Atom]map[string]string{
	atom.Strong: {"font-weight": "700"},
	atom.B:      {"font-weight": "700"},
	atom.Th:     {"font-weight": "700", "text-align": "center"},
}

// utilityClasses maps common utility classes onto the reported properties.
var utilityClasses = map[string][2]string{
	"text-left":      {"text-align", "left"},
	"text-center":    {"text-align", "center"},
	"text-right":     {"text-align", "right"},
	"text-justify":   {"text-align", "justify"},
	"font-thin":      {"font-weight", "100"},
	"font-light":     {"font-weight", "300"},
	"font-normal":    {"font-weight", "400"},
	"font-medium":    {"font-weight", "500"},
	"font-semibold":  {"font-weight", "600"},
	"font-bold":      {"font-weight", "700"},
	"font-extrabold": {"font-weight", "800"},
	"font-black":     {"font-weight", "900"},
	"text-xs":        {"font-size", "12px"},
	"text-sm":        {"font-size", "14px"},
	"text-base":      {"font-size", "16px"},
	"text-lg":        {"font-size", "18px"},
	"text-xl":        {"font-size", "20px"},
	"text-2xl":       {"font-size", "24px"},
	"text-3xl":       {"font-size", "30px"},
	"text-4xl":       {"font-size", "36px"},
	"text-5xl":       {"font-size", "48px"},
	"text-6xl":       {"font-size", "60px"},
	"text-white":     {"color", "#ffffff"},
	"text-black":     {"color", "#000000"},
	"bg-white":       {"background-color", "#ffffff"},
	"bg-black":       {"background-color", "#000000"},
	"bg-transparent": {"background-color", "transparent"},
	"font-sans":      {"font-family", defaultFontFamily},
	"font-serif":     {"font-family", `ui-serif, Georgia, Cambria, "Times New Roman", Times, serif`},
	"font-mono":      {"font-family", `ui-monospace, SFMono-Regular, Menlo, Monaco, Consolas, "Liberation Mono", "Courier New", monospace`},
}

// ComputedStyles returns the reported style subset for n.
func ComputedStyles(n *html.Node) protocol.Styles {
	return protocol.Styles{
		Color:           NormalizeColor(computed(n, "color")),
		BackgroundColor: NormalizeColor(computed(n, "background-color")),
		FontSize:        computed(n, "font-size"),
		FontWeight:      computed(n, "font-weight"),
		FontFamily:      computed(n, "font-family"),
		Padding:         computed(n, "padding"),
		Margin:          computed(n, "margin"),
		TextAlign:       computed(n, "text-align"),
	}
}

func computed(n *html.Node, property string) string {
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		if v, ok := declared(cur, property); ok {
			return v
		}
		if !inherited[property] {
			break
		}
	}
	return initialValues[property]
}

// declared returns the value set on n itself, by inline style, utility
// class or tag default, in that order of precedence.
func declared(n *html.Node, property string) (string, bool) {
	if v, ok := inlineStyles(n)[property]; ok {
		return v, true
	}
	for _, c := range classList(n) {
		if u, ok := utilityClasses[c]; ok && u[0] == property {
			return u[1], true
		}
	}
	if d, ok := tagDefaults[n.DataAtom]; ok {
		if v, ok := d[property]; ok {
			return v, true
		}
	}
	return "", false
}

// inlineStyles parses the style attribute of n. Later declarations win.
func inlineStyles(n *html.Node) map[string]string {
	out := map[string]string{}
	for _, d := range parseDeclarations(getAttr(n, "style")) {
		out[strings.ToLower(d.Property)] = d.Value
	}
	return out
}

func parseDeclarations(style string) []*css.Declaration {
	if strings.TrimSpace(style) == "" {
		return nil
	}
	// The parser drops the value of a final declaration without a
	// terminating semicolon.
	decls, err := parser.ParseDeclarations(strings.TrimRight(style, "; \t\r\n") + ";")
	if err != nil {
		slog.Debug("ignoring unparseable inline style", "style", style, "error", err)
		return nil
	}
	return decls
}

// SetInlineStyle sets one property in the style attribute of n. The
// property may be camelCase; an empty value removes the declaration.
func SetInlineStyle(n *html.Node, property, value string) error {
	prop := kebab(property)
	if prop == "" || strings.ContainsAny(prop, ";:{}") {
		return fmt.Errorf("invalid style property %q", property)
	}
	if strings.ContainsAny(value, ";{}") {
		return fmt.Errorf("invalid value for %s", prop)
	}
	value = strings.TrimSpace(value)

	decls := parseDeclarations(getAttr(n, "style"))
	kept := decls[:0]
	replaced := false
	for _, d := range decls {
		if strings.EqualFold(d.Property, prop) {
			if value == "" || replaced {
				continue
			}
			d.Value = value
			d.Important = false
			replaced = true
		}
		kept = append(kept, d)
	}
	if !replaced && value != "" {
		kept = append(kept, &css.Declaration{Property: prop, Value: value})
	}

	if len(kept) == 0 {
		removeAttr(n, "style")
		return nil
	}
	setAttr(n, "style", serializeDeclarations(kept))
	return nil
}

func serializeDeclarations(decls []*css.Declaration) string {
	parts := make([]string, 0, len(decls))
	for _, d := range decls {
		s := d.Property + ": " + d.Value
		if d.Important {
			s += " !important"
		}
		parts = append(parts, s+";")
	}
	return strings.Join(parts, " ")
}

// kebab converts backgroundColor to background-color. Already kebab-case
// input is returned lowercased.
func kebab(property string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(property) {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var rgbPattern = regexp.MustCompile(`^rgba?\(\s*(\d+)\s*,\s*(\d+)\s*,\s*(\d+)\s*(?:,\s*([\d.]+)\s*)?\)$`)

// NormalizeColor converts a CSS color to #rrggbb. Unset and fully
// transparent colors become #ffffff; values that cannot be parsed are
// returned unchanged.
func NormalizeColor(v string) string {
	v = strings.TrimSpace(v)
	lower := strings.ToLower(v)
	if lower == "" || lower == "transparent" {
		return "#ffffff"
	}

	if m := rgbPattern.FindStringSubmatch(lower); m != nil {
		if m[4] != "" {
			if a, err := strconv.ParseFloat(m[4], 64); err == nil && a == 0 {
				return "#ffffff"
			}
		}
		var rgb [3]float64
		for i := 0; i < 3; i++ {
			c, _ := strconv.Atoi(m[i+1])
			if c > 255 {
				c = 255
			}
			rgb[i] = float64(c) / 255
		}
		return colorful.Color{R: rgb[0], G: rgb[1], B: rgb[2]}.Hex()
	}

	if strings.HasPrefix(lower, "#") {
		if c, err := colorful.Hex(lower); err == nil {
			return c.Hex()
		}
		return v
	}

	if named, ok := colornames.Map[lower]; ok {
		if c, ok := colorful.MakeColor(named); ok {
			return c.Hex()
		}
	}
	return v
}
