package gateway

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestRenderOptions(t *testing.T) {
	msg := &OutboundMessage{Content: "Translate: house"}
	if got := RenderOptions(msg); got != "Translate: house" {
		t.Fatalf("no options render = %q", got)
	}

	msg.Options = []string{"дом", "дерево", "река"}
	got := RenderOptions(msg)
	for _, want := range []string{"1. дом", "2. дерево", "3. река"} {
		if !strings.Contains(got, want) {
			t.Fatalf("render %q missing %q", got, want)
		}
	}
}

func TestRESTAdapterRoundtrip(t *testing.T) {
	a := NewRESTAdapter(zap.NewNop())
	a.OnMessage(func(msg *InboundMessage) {
		if err := a.Send(context.Background(), &OutboundMessage{
			Platform:  "rest",
			ChannelID: msg.ChannelID,
			Content:   "echo: " + msg.Content,
		}); err != nil {
			t.Errorf("Send: %v", err)
		}
	})

	srv := httptest.NewServer(a.Routes())
	defer srv.Close()

	resp, err := srv.Client().Post(srv.URL+"/message", "application/json",
		strings.NewReader(`{"user_id":"u1","content":"/help"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var out OutboundMessage
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Content != "echo: /help" {
		t.Fatalf("content = %q", out.Content)
	}
}

func TestRESTAdapterRejectsEmptyContent(t *testing.T) {
	a := NewRESTAdapter(zap.NewNop())
	srv := httptest.NewServer(a.Routes())
	defer srv.Close()

	resp, err := srv.Client().Post(srv.URL+"/message", "application/json",
		strings.NewReader(`{"user_id":"u1"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 400 {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}
