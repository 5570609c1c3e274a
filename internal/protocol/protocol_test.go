package protocol

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEncode_WireShapes(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{"style", UpdateStyle("color", "#ff0000"), `{"type":"UPDATE_STYLE","property":"color","value":"#ff0000"}`},
		{"text", UpdateText("Hello"), `{"type":"UPDATE_TEXT","text":"Hello"}`},
		{"empty text", UpdateText(""), `{"type":"UPDATE_TEXT","text":""}`},
		{"attribute", UpdateAttribute("src", "https://x/y.png"), `{"type":"UPDATE_ATTRIBUTE","attribute":"src","value":"https://x/y.png"}`},
		{"deselect", Deselect(), `{"type":"DESELECT_ELEMENT"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Encode(tt.msg)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if string(b) != tt.want {
				t.Errorf("Encode() = %s, want %s", b, tt.want)
			}
		})
	}
}

func TestEncode_SelectedUsesCamelCase(t *testing.T) {
	b, err := Encode(Selected(&ElementData{
		TagName: "H1",
		XPath:   `id("hero")`,
		Styles:  Styles{BackgroundColor: "#ffffff", FontSize: "32px"},
	}))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	data := raw["data"].(map[string]any)
	styles := data["styles"].(map[string]any)

	require.Equal(t, "ELEMENT_SELECTED", raw["type"])
	require.Equal(t, "H1", data["tagName"])
	require.Equal(t, "#ffffff", styles["backgroundColor"])
	require.Equal(t, "32px", styles["fontSize"])
}

func TestDecode_Validation(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"selected ok", `{"type":"ELEMENT_SELECTED","data":{"tagName":"P","xpath":"/html/body/p[1]"}}`, false},
		{"selected missing xpath", `{"type":"ELEMENT_SELECTED","data":{"tagName":"P"}}`, true},
		{"selected missing data", `{"type":"ELEMENT_SELECTED"}`, true},
		{"style missing property", `{"type":"UPDATE_STYLE","value":"red"}`, true},
		{"style empty value", `{"type":"UPDATE_STYLE","property":"color"}`, false},
		{"text missing", `{"type":"UPDATE_TEXT"}`, true},
		{"attribute missing name", `{"type":"UPDATE_ATTRIBUTE","value":"x"}`, true},
		{"deselect", `{"type":"DESELECT_ELEMENT"}`, false},
		{"unknown", `{"type":"RELOAD"}`, true},
		{"garbage", `{`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.in))
			if (err != nil) != tt.wantErr {
				t.Errorf("Decode() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStyles_GetSet(t *testing.T) {
	var s Styles
	if !s.Set("textAlign", "center") {
		t.Fatal("Set(textAlign) = false")
	}
	if v, ok := s.Get("textAlign"); !ok || v != "center" {
		t.Errorf("Get(textAlign) = %q, %v", v, ok)
	}
	if s.Set("zIndex", "3") {
		t.Error("Set(zIndex) = true, want false for unknown property")
	}
}

func TestElementData_Clone(t *testing.T) {
	d := &ElementData{TagName: "IMG", XPath: "/html/body/img[1]", ClassList: []string{"a"}, Attributes: map[string]string{"src": "x"}}
	c := d.Clone()
	c.ClassList[0] = "b"
	c.Attributes["src"] = "y"

	if d.ClassList[0] != "a" || d.Attributes["src"] != "x" {
		t.Error("Clone shares state with original")
	}
	var nilData *ElementData
	if nilData.Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
}

func TestPort_OrderedDelivery(t *testing.T) {
	var mu sync.Mutex
	var got []string
	p := NewPort("test", func(m Message) {
		mu.Lock()
		got = append(got, m.Value)
		mu.Unlock()
	}, nil)
	defer p.Close()

	for i := 0; i < 100; i++ {
		p.Post(UpdateStyle("padding", string(rune('A'+i%26))))
	}
	require.NoError(t, p.Flush(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 100)
	for i, v := range got {
		if v != string(rune('A'+i%26)) {
			t.Fatalf("message %d = %q, out of order", i, v)
		}
	}
}

func TestPort_HandlerPanicDoesNotStopDelivery(t *testing.T) {
	var count int
	var mu sync.Mutex
	p := NewPort("test", func(m Message) {
		if m.Type == TypeDeselect {
			panic("boom")
		}
		mu.Lock()
		count++
		mu.Unlock()
	}, nil)
	defer p.Close()

	p.Post(UpdateText("a"))
	p.Post(Deselect())
	p.Post(UpdateText("b"))
	require.NoError(t, p.Flush(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 2, count)
}

func TestPort_CloseDropsLaterPosts(t *testing.T) {
	var count int
	var mu sync.Mutex
	p := NewPort("test", func(Message) {
		mu.Lock()
		count++
		mu.Unlock()
	}, nil)

	p.Post(Deselect())
	p.Close()
	p.Post(Deselect())

	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("port did not stop after Close")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, count)
}

func TestPort_FlushHonorsContext(t *testing.T) {
	release := make(chan struct{})
	p := NewPort("test", func(Message) { <-release }, nil)
	defer func() {
		close(release)
		p.Close()
	}()

	p.Post(Deselect())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, p.Flush(ctx), context.DeadlineExceeded)
}
