// ABOUTME: Source pack for reading ABAP object source text and object metadata
// ABOUTME: Object URLs are the ADT URIs returned by search and node listings

package builtins

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/2389/adt-gateway/internal/adt"
	"github.com/2389/adt-gateway/internal/packs"
)

// SourcePack creates the source pack.
func SourcePack(b Backend) *packs.BuiltinPack {
	h := &sourceHandlers{backend: b}
	return &packs.BuiltinPack{
		ID: "builtin:source",
		Tools: []*packs.BuiltinTool{
			packs.NewTool("getObjectSource", "Retrieve the source code of an ABAP object", h.GetObjectSource),
			packs.NewTool("getObjectStructure", "Retrieve the metadata structure of an ABAP object", h.GetObjectStructure),
		},
	}
}

type sourceHandlers struct {
	backend Backend
}

type objectSourceInput struct {
	ObjectSourceURL string `json:"objectSourceUrl" jsonschema:"description=ADT source URI such as /sap/bc/adt/programs/programs/ztest/source/main"`
	Version         string `json:"version,omitempty" jsonschema:"description=active or inactive,enum=active,enum=inactive"`
}

type objectStructureInput struct {
	ObjectURL string `json:"objectUrl" jsonschema:"description=ADT object URI such as /sap/bc/adt/oo/classes/zcl_demo"`
}

// Link is an Atom link inside ADT object metadata.
type Link struct {
	Href  string `json:"href" xml:"href,attr"`
	Rel   string `json:"rel,omitempty" xml:"rel,attr"`
	Type  string `json:"type,omitempty" xml:"type,attr"`
	Title string `json:"title,omitempty" xml:"title,attr"`
}

type objectStructure struct {
	XMLName     xml.Name
	Name        string `xml:"http://www.sap.com/adt/core name,attr"`
	Type        string `xml:"http://www.sap.com/adt/core type,attr"`
	Description string `xml:"http://www.sap.com/adt/core description,attr"`
	Links       []Link `xml:"http://www.w3.org/2005/Atom link"`
}

func (h *sourceHandlers) GetObjectSource(ctx context.Context, in objectSourceInput) (any, error) {
	path, err := adtPath(in.ObjectSourceURL)
	if err != nil {
		return nil, err
	}
	var q url.Values
	if in.Version != "" {
		q = url.Values{"version": {in.Version}}
	}

	resp, err := h.backend.Do(ctx, &adt.Request{
		Method: http.MethodGet,
		Path:   path,
		Query:  q,
		Accept: "text/plain",
	})
	if err != nil {
		return nil, err
	}
	return map[string]string{"source": string(resp.Body)}, nil
}

func (h *sourceHandlers) GetObjectStructure(ctx context.Context, in objectStructureInput) (any, error) {
	path, err := adtPath(in.ObjectURL)
	if err != nil {
		return nil, err
	}

	resp, err := h.backend.Do(ctx, &adt.Request{
		Method: http.MethodGet,
		Path:   path,
		Accept: "application/*",
	})
	if err != nil {
		return nil, err
	}

	var s objectStructure
	if err := xml.Unmarshal(resp.Body, &s); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", path, err)
	}
	if s.Links == nil {
		s.Links = []Link{}
	}
	return map[string]any{
		"objectUrl":   path,
		"kind":        s.XMLName.Local,
		"name":        s.Name,
		"type":        s.Type,
		"description": s.Description,
		"links":       s.Links,
		"metadata":    string(resp.Body),
	}, nil
}

// adtPath accepts only paths rooted in the ADT namespace so a caller cannot
// steer requests to arbitrary ICF services on the same host.
func adtPath(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/sap/bc/adt/") {
		return "", fmt.Errorf("%w: %q is not an ADT object URI", packs.ErrInvalidArguments, raw)
	}
	if u.RawQuery != "" {
		return u.Path + "?" + u.RawQuery, nil
	}
	return u.Path, nil
}
