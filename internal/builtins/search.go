// ABOUTME: Search pack wrapping the ADT repository quick search
// ABOUTME: Returns object references with uri, type, name, and package

package builtins

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/2389/adt-gateway/internal/adt"
	"github.com/2389/adt-gateway/internal/packs"
)

// defaultMaxResults caps quick search results when the caller sets no limit.
const defaultMaxResults = 100

// SearchPack creates the search pack.
func SearchPack(b Backend) *packs.BuiltinPack {
	h := &searchHandlers{backend: b}
	return &packs.BuiltinPack{
		ID: "builtin:search",
		Tools: []*packs.BuiltinTool{
			packs.NewTool("searchObject", "Search for ABAP repository objects", h.SearchObject),
		},
	}
}

type searchHandlers struct {
	backend Backend
}

type searchObjectInput struct {
	Query      string `json:"query" jsonschema:"description=Search pattern with optional * wildcards"`
	ObjType    string `json:"objType,omitempty" jsonschema:"description=Object type filter such as CLAS/OC"`
	MaxResults int    `json:"maxResults,omitempty" jsonschema:"description=Maximum number of results"`
}

// ObjectReference identifies one repository object.
type ObjectReference struct {
	URI         string `json:"uri" xml:"http://www.sap.com/adt/core uri,attr"`
	Type        string `json:"type" xml:"http://www.sap.com/adt/core type,attr"`
	Name        string `json:"name" xml:"http://www.sap.com/adt/core name,attr"`
	PackageName string `json:"packageName,omitempty" xml:"http://www.sap.com/adt/core packageName,attr"`
	Description string `json:"description,omitempty" xml:"http://www.sap.com/adt/core description,attr"`
}

type objectReferences struct {
	References []ObjectReference `xml:"objectReference"`
}

func (h *searchHandlers) SearchObject(ctx context.Context, in searchObjectInput) (any, error) {
	limit := in.MaxResults
	if limit <= 0 {
		limit = defaultMaxResults
	}
	q := url.Values{
		"operation":  {"quickSearch"},
		"query":      {in.Query},
		"maxResults": {strconv.Itoa(limit)},
	}
	if in.ObjType != "" {
		q.Set("objectType", in.ObjType)
	}

	var refs objectReferences
	err := fetchXML(ctx, h.backend, &adt.Request{
		Method: http.MethodGet,
		Path:   "/sap/bc/adt/repository/informationsystem/search",
		Query:  q,
		Accept: "application/xml",
	}, &refs)
	if err != nil {
		return nil, err
	}
	if refs.References == nil {
		refs.References = []ObjectReference{}
	}
	return map[string]any{"results": refs.References, "count": len(refs.References)}, nil
}
