package csp

import (
	"encoding/json"
	"net/url"
	"reflect"
	"strings"
	"testing"

	"github.com/nao1215/cspgen/internal/model"
)

// TestRender tests the three policy renderings.
func TestRender(t *testing.T) {
	t.Parallel()

	t.Run("header follows directive order", func(t *testing.T) {
		t.Parallel()

		a := NewAggregator()
		a.Record(model.ImgSrc, "img.example.net")
		a.Record(model.ScriptSrc, "cdn.example.net")
		a.Record(model.DefaultSrc, model.SourceSelf)

		got := RenderHeader(a.Finalize())
		want := "script-src cdn.example.net 'self'; img-src img.example.net 'self'; default-src 'self'"
		if got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	})

	t.Run("empty policy", func(t *testing.T) {
		t.Parallel()

		p := NewAggregator().Finalize()
		if got := RenderHeader(p); got != "" {
			t.Errorf("expected empty header, got %q", got)
		}
		data, err := RenderJSON(p)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(data) != "{}\n" {
			t.Errorf("expected {}, got %q", data)
		}
		if !strings.Contains(string(RenderWebConfig(p)), `value=""`) {
			t.Errorf("expected empty value attribute, got %s", RenderWebConfig(p))
		}
	})

	t.Run("web.config skeleton", func(t *testing.T) {
		t.Parallel()

		a := NewAggregator()
		a.Record(model.ScriptSrc, "cdn.example.net")

		want := `<?xml version="1.0" encoding="UTF-8"?>
<configuration>
  <system.webServer>
    <httpProtocol>
      <customHeaders>
        <add name="Content-Security-Policy" value="script-src cdn.example.net 'self'" />
      </customHeaders>
    </httpProtocol>
  </system.webServer>
</configuration>
`
		if got := string(RenderWebConfig(a.Finalize())); got != want {
			t.Errorf("unexpected web.config:\n%s", got)
		}
	})

	t.Run("web.config escapes reserved characters", func(t *testing.T) {
		t.Parallel()

		a := NewAggregator()
		a.Record(model.ConnectSrc, `evil"&<host>`)

		got := string(RenderWebConfig(a.Finalize()))
		if !strings.Contains(got, `value="connect-src evil&quot;&amp;&lt;host&gt; 'self'"`) {
			t.Errorf("value not escaped:\n%s", got)
		}
	})

	t.Run("json round trip", func(t *testing.T) {
		t.Parallel()

		a := NewAggregator()
		a.Record(model.FrameSrc, "www.youtube.com")
		a.Record(model.FontSrc, "fonts.gstatic.com")
		a.Record(model.FontSrc, model.SourceSelf)
		a.Record(model.ConnectSrc, "api.example.net")
		p := a.Finalize()

		data, err := RenderJSON(p)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		decoded := model.NewPolicy()
		if err := json.Unmarshal(data, decoded); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(decoded.Directives(), p.Directives()) {
			t.Errorf("expected %v, got %v", p.Directives(), decoded.Directives())
		}
		for _, d := range p.Directives() {
			if !reflect.DeepEqual(decoded.Sources(d), p.Sources(d)) {
				t.Errorf("%s: expected %v, got %v", d, p.Sources(d), decoded.Sources(d))
			}
		}
	})
}

// TestSinglePagePolicy runs one page worth of references through the
// normalizer, classifier and aggregator.
func TestSinglePagePolicy(t *testing.T) {
	t.Parallel()

	norm, err := NewNormalizer("https://example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cls := NewClassifier()
	agg := NewAggregator()
	base, _ := url.Parse("https://example.com/")

	refs := []model.Reference{
		{URL: "https://cdn.example.net/a.js", Context: model.ElementContext{Tag: "script", Attr: "src"}},
		{URL: "/css/site.css", Context: model.ElementContext{Tag: "link", Attr: "href", Rel: "stylesheet"}},
	}
	for _, ref := range refs {
		tok, err := norm.Normalize(base, ref.URL)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", ref.URL, err)
		}
		agg.Record(cls.Classify(ref.Context), tok)
	}

	data, err := json.Marshal(agg.Finalize())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"script-src":["cdn.example.net","'self'"],"style-src":["'self'"]}`
	if string(data) != want {
		t.Errorf("expected %s, got %s", want, data)
	}
}
