// ABOUTME: Discovery pack exposing the ADT service document
// ABOUTME: Decodes workspaces and collections from the AtomPub discovery feed

package builtins

import (
	"context"
	"net/http"

	"github.com/2389/adt-gateway/internal/adt"
	"github.com/2389/adt-gateway/internal/packs"
)

// DiscoveryPack creates the discovery pack.
func DiscoveryPack(b Backend) *packs.BuiltinPack {
	h := &discoveryHandlers{backend: b}
	return &packs.BuiltinPack{
		ID: "builtin:discovery",
		Tools: []*packs.BuiltinTool{
			packs.NewTool("getDiscovery", "Retrieve ADT discovery information", h.GetDiscovery),
		},
	}
}

type discoveryHandlers struct {
	backend Backend
}

// Collection is one ADT resource collection.
type Collection struct {
	Href   string   `json:"href" xml:"href,attr"`
	Title  string   `json:"title" xml:"title"`
	Accept []string `json:"accept,omitempty" xml:"accept"`
}

// Workspace groups related collections.
type Workspace struct {
	Title       string       `json:"title" xml:"title"`
	Collections []Collection `json:"collections" xml:"collection"`
}

type discoveryDoc struct {
	Workspaces []Workspace `xml:"workspace"`
}

func (h *discoveryHandlers) GetDiscovery(ctx context.Context, _ struct{}) (any, error) {
	var doc discoveryDoc
	err := fetchXML(ctx, h.backend, &adt.Request{
		Method: http.MethodGet,
		Path:   "/sap/bc/adt/discovery",
		Accept: "application/atomsvc+xml",
	}, &doc)
	if err != nil {
		return nil, err
	}
	if doc.Workspaces == nil {
		doc.Workspaces = []Workspace{}
	}
	return map[string]any{"workspaces": doc.Workspaces}, nil
}
