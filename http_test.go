package pagefind

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/hazyhaar/pagefind/find"
	"github.com/hazyhaar/pagefind/framebus"
	"github.com/hazyhaar/pagefind/layout"
	"github.com/hazyhaar/pagefind/observability"
)

type client struct {
	t      *testing.T
	srv    *httptest.Server
	secret string
}

func newClient(t *testing.T) *client {
	t.Helper()
	svc := newService(t, testConfig())
	srv := httptest.NewServer(svc.Handler())
	t.Cleanup(srv.Close)
	return &client{t: t, srv: srv, secret: svc.Secret()}
}

func (c *client) do(method, path string, body any, secret bool, out any) int {
	c.t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, _ := http.NewRequest(method, c.srv.URL+path, rd)
	if secret {
		req.Header.Set(SecretHeader, c.secret)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			c.t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (c *client) command(cmd find.Command) (CommandResult, int) {
	c.t.Helper()
	if cmd.SessionSecret == "" {
		cmd.SessionSecret = c.secret
	}
	var res CommandResult
	code := c.do(http.MethodPost, "/command", cmd, false, &res)
	return res, code
}

func TestHTTP_Command(t *testing.T) {
	c := newClient(t)

	res, code := c.command(find.Command{Action: find.ActionStartFind, InstanceID: "tab", SearchTerm: "needle"})
	if code != http.StatusOK || !res.OK || res.Update == nil {
		t.Fatalf("start: %d %+v", code, res)
	}
	if res.Update.TotalMatches != 3 || len(res.Update.MatchIdentifiers) != 3 || len(res.Update.Contexts) != 3 {
		t.Fatalf("start update: %+v", res.Update)
	}
	res, code = c.command(find.Command{Action: find.ActionFindPrevious, InstanceID: "tab"})
	if code != http.StatusOK || res.Update.CurrentMatch != 3 {
		t.Fatalf("previous wraps: %d %+v", code, res.Update)
	}

	for _, tc := range []struct {
		name string
		cmd  find.Command
		want int
	}{
		{"bad secret", find.Command{Action: find.ActionFindNext, InstanceID: "tab", SessionSecret: "nope"}, http.StatusForbidden},
		{"unknown action", find.Command{Action: "eval", InstanceID: "tab"}, http.StatusBadRequest},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, code := c.command(tc.cmd); code != tc.want {
				t.Fatalf("status: got %d, want %d", code, tc.want)
			}
		})
	}

	req, _ := http.NewRequest(http.MethodPost, c.srv.URL+"/command", strings.NewReader("{"))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed body: %d", resp.StatusCode)
	}
}

func TestHTTP_Bounds(t *testing.T) {
	c := newClient(t)
	res, _ := c.command(find.Command{Action: find.ActionStartFind, InstanceID: "tab", SearchTerm: "needle"})
	id := res.Update.MatchIdentifiers[0]
	coords := make([]string, len(id.Coordinates))
	for i, v := range id.Coordinates {
		coords[i] = fmt.Sprint(v)
	}
	q := url.Values{
		"instanceId": {"tab"},
		"index":      {fmt.Sprint(id.Index)},
		"coords":     {strings.Join(coords, ",")},
		"text":       {id.Text},
	}
	path := "/bounds?" + q.Encode()

	var r layout.Rect
	if code := c.do(http.MethodGet, path, nil, true, &r); code != http.StatusOK {
		t.Fatalf("bounds: %d", code)
	}
	if r.Width != 48 || r.Height != 16 {
		t.Fatalf("rect: %+v", r)
	}
	if code := c.do(http.MethodGet, path, nil, false, nil); code != http.StatusForbidden {
		t.Fatalf("bounds without secret: %d", code)
	}
	if code := c.do(http.MethodGet, "/bounds?instanceId=tab&index=0&coords=9,9&text=x", nil, true, nil); code != http.StatusNotFound {
		t.Fatalf("unknown match: %d", code)
	}
	if code := c.do(http.MethodGet, "/bounds?instanceId=tab&index=0&coords=a", nil, true, nil); code != http.StatusBadRequest {
		t.Fatalf("bad coords: %d", code)
	}
}

func TestHTTP_SecretGuardedRoutes(t *testing.T) {
	c := newClient(t)
	for _, path := range []string{"/graph", "/outline", "/events"} {
		if code := c.do(http.MethodGet, path, nil, false, nil); code != http.StatusForbidden {
			t.Fatalf("%s without secret: %d", path, code)
		}
	}

	var g framebus.GraphNode
	if code := c.do(http.MethodGet, "/graph", nil, true, &g); code != http.StatusOK {
		t.Fatalf("graph: %d", code)
	}
	if len(g.Children) != 1 || g.Children[0].Error != "" {
		t.Fatalf("graph: %+v", g)
	}

	var outline []FrameOutline
	if code := c.do(http.MethodGet, "/outline", nil, true, &outline); code != http.StatusOK || len(outline) != 2 {
		t.Fatalf("outline: %d %+v", code, outline)
	}

	c.command(find.Command{Action: find.ActionStartFind, InstanceID: "tab", SearchTerm: "needle"})
	c.command(find.Command{Action: find.ActionFindNext, InstanceID: "tab"})
	var evs []observability.StoredUpdate
	if code := c.do(http.MethodGet, "/events?instanceId=tab", nil, true, &evs); code != http.StatusOK {
		t.Fatalf("events: %d", code)
	}
	if len(evs) < 2 || evs[len(evs)-1].Update.Action != find.ActionCurrentChanged {
		t.Fatalf("events: %+v", evs)
	}
	var after []observability.StoredUpdate
	c.do(http.MethodGet, fmt.Sprintf("/events?instanceId=tab&after=%d", evs[len(evs)-1].Seq), nil, true, &after)
	if len(after) != 0 {
		t.Fatalf("events after last: %+v", after)
	}
}

func TestHTTP_Health(t *testing.T) {
	c := newClient(t)
	var h map[string]any
	if code := c.do(http.MethodGet, "/health", nil, false, &h); code != http.StatusOK || h["frames"] != float64(2) {
		t.Fatalf("health: %d %+v", code, h)
	}
}
