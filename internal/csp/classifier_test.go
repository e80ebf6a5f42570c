package csp

import (
	"testing"

	"github.com/nao1215/cspgen/internal/model"
)

// TestClassifierClassify tests the built-in rule table.
func TestClassifierClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ctx  model.ElementContext
		want model.Directive
	}{
		{name: "script src", ctx: model.ElementContext{Tag: "script", Attr: "src"}, want: model.ScriptSrc},
		{name: "stylesheet", ctx: model.ElementContext{Tag: "link", Attr: "href", Rel: "stylesheet"}, want: model.StyleSrc},
		{name: "alternate stylesheet", ctx: model.ElementContext{Tag: "link", Attr: "href", Rel: "alternate stylesheet"}, want: model.StyleSrc},
		{name: "icon", ctx: model.ElementContext{Tag: "link", Attr: "href", Rel: "icon"}, want: model.ImgSrc},
		{name: "shortcut icon", ctx: model.ElementContext{Tag: "link", Attr: "href", Rel: "Shortcut Icon"}, want: model.ImgSrc},
		{name: "apple touch icon", ctx: model.ElementContext{Tag: "link", Attr: "href", Rel: "apple-touch-icon"}, want: model.ImgSrc},
		{name: "preload font", ctx: model.ElementContext{Tag: "link", Attr: "href", Rel: "preload", As: "font"}, want: model.FontSrc},
		{name: "preload script", ctx: model.ElementContext{Tag: "link", Attr: "href", Rel: "preload", As: "script"}, want: model.ScriptSrc},
		{name: "prefetch image", ctx: model.ElementContext{Tag: "link", Attr: "href", Rel: "prefetch", As: "IMAGE"}, want: model.ImgSrc},
		{name: "preload fetch", ctx: model.ElementContext{Tag: "link", Attr: "href", Rel: "preload", As: "fetch"}, want: model.ConnectSrc},
		{name: "preload without as", ctx: model.ElementContext{Tag: "link", Attr: "href", Rel: "preload"}, want: model.DefaultSrc},
		{name: "preconnect", ctx: model.ElementContext{Tag: "link", Attr: "href", Rel: "preconnect"}, want: model.ConnectSrc},
		{name: "modulepreload", ctx: model.ElementContext{Tag: "link", Attr: "href", Rel: "modulepreload"}, want: model.ScriptSrc},
		{name: "manifest", ctx: model.ElementContext{Tag: "link", Attr: "href", Rel: "manifest"}, want: model.DefaultSrc},
		{name: "img src", ctx: model.ElementContext{Tag: "img", Attr: "src"}, want: model.ImgSrc},
		{name: "img srcset", ctx: model.ElementContext{Tag: "img", Attr: "srcset"}, want: model.ImgSrc},
		{name: "picture source srcset", ctx: model.ElementContext{Tag: "source", Attr: "srcset", Parent: "picture"}, want: model.ImgSrc},
		{name: "video source src", ctx: model.ElementContext{Tag: "source", Attr: "src", Parent: "video"}, want: model.DefaultSrc},
		{name: "video poster", ctx: model.ElementContext{Tag: "video", Attr: "poster"}, want: model.ImgSrc},
		{name: "input image", ctx: model.ElementContext{Tag: "input", Attr: "src", Type: "image"}, want: model.ImgSrc},
		{name: "input other type", ctx: model.ElementContext{Tag: "input", Attr: "src", Type: "text"}, want: model.DefaultSrc},
		{name: "iframe", ctx: model.ElementContext{Tag: "iframe", Attr: "src"}, want: model.FrameSrc},
		{name: "frame", ctx: model.ElementContext{Tag: "frame", Attr: "src"}, want: model.FrameSrc},
		{name: "form action", ctx: model.ElementContext{Tag: "form", Attr: "action"}, want: model.ConnectSrc},
		{name: "script endpoint", ctx: model.ElementContext{Tag: "fetch"}, want: model.ConnectSrc},
		{name: "font face", ctx: model.ElementContext{Tag: "@font-face"}, want: model.FontSrc},
		{name: "css import", ctx: model.ElementContext{Tag: "@import"}, want: model.StyleSrc},
		{name: "css url", ctx: model.ElementContext{Tag: "css"}, want: model.ImgSrc},
		{name: "embed", ctx: model.ElementContext{Tag: "embed", Attr: "src"}, want: model.DefaultSrc},
		{name: "audio", ctx: model.ElementContext{Tag: "audio", Attr: "src"}, want: model.DefaultSrc},
		{name: "upper case tag", ctx: model.ElementContext{Tag: "SCRIPT", Attr: "SRC"}, want: model.ScriptSrc},
	}

	c := NewClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := c.Classify(tt.ctx); got != tt.want {
				t.Errorf("Classify(%+v) = %s, want %s", tt.ctx, got, tt.want)
			}
		})
	}
}

// TestClassifierSpecificity tests that qualified rules beat bare tag rules.
func TestClassifierSpecificity(t *testing.T) {
	t.Parallel()

	t.Run("parent qualified extra rule beats bare tag", func(t *testing.T) {
		t.Parallel()

		c := NewClassifier(Rule{Tag: "img", Attr: "src", Parent: "noscript", Directive: model.DefaultSrc})
		if got := c.Classify(model.ElementContext{Tag: "img", Attr: "src", Parent: "noscript"}); got != model.DefaultSrc {
			t.Errorf("expected default-src, got %s", got)
		}
		if got := c.Classify(model.ElementContext{Tag: "img", Attr: "src"}); got != model.ImgSrc {
			t.Errorf("expected img-src, got %s", got)
		}
	})

	t.Run("extra rule wins a tie", func(t *testing.T) {
		t.Parallel()

		c := NewClassifier(Rule{Tag: "script", Attr: "src", Directive: model.DefaultSrc})
		if got := c.Classify(model.ElementContext{Tag: "script", Attr: "src"}); got != model.DefaultSrc {
			t.Errorf("expected default-src, got %s", got)
		}
	})

	t.Run("rule with invalid directive is ignored", func(t *testing.T) {
		t.Parallel()

		c := NewClassifier(Rule{Tag: "script", Attr: "src", Type: "module", Directive: model.Directive("worker-src")})
		if got := c.Classify(model.ElementContext{Tag: "script", Attr: "src", Type: "module"}); got != model.ScriptSrc {
			t.Errorf("expected script-src, got %s", got)
		}
	})
}
