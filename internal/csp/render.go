package csp

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nao1215/cspgen/internal/model"
)

// HeaderName is the HTTP response header carrying the policy.
const HeaderName = "Content-Security-Policy"

// RenderHeader returns the header value for p: one
// "<directive> <token> <token>..." segment per directive, joined by "; ".
// An empty policy renders as the empty string.
func RenderHeader(p *model.Policy) string {
	if p == nil {
		return ""
	}

	segments := make([]string, 0, len(p.Directives()))
	for _, d := range p.Directives() {
		segments = append(segments, d.String()+" "+strings.Join(p.Sources(d), " "))
	}
	return strings.Join(segments, "; ")
}

// xmlAttrEscaper escapes a value for a double-quoted XML attribute.
var xmlAttrEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

// webConfigTemplate is the IIS configuration skeleton. %s is the escaped
// header value.
const webConfigTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<configuration>
  <system.webServer>
    <httpProtocol>
      <customHeaders>
        <add name="` + HeaderName + `" value="%s" />
      </customHeaders>
    </httpProtocol>
  </system.webServer>
</configuration>
`

// RenderWebConfig returns an IIS web.config document that sends p as a
// custom response header.
func RenderWebConfig(p *model.Policy) []byte {
	return fmt.Appendf(nil, webConfigTemplate, xmlAttrEscaper.Replace(RenderHeader(p)))
}

// RenderJSON returns p as an indented JSON object followed by a newline.
// Keys follow the directive rendering order; values keep insertion order.
func RenderJSON(p *model.Policy) ([]byte, error) {
	if p == nil {
		p = model.NewPolicy()
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode policy: %w", err)
	}
	return append(data, '\n'), nil
}
