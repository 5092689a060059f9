// ABOUTME: Nodes pack for browsing the ABAP repository tree
// ABOUTME: Posts to the node structure service and flattens the asXML node list

package builtins

import (
	"context"
	"net/http"
	"net/url"

	"github.com/2389/adt-gateway/internal/adt"
	"github.com/2389/adt-gateway/internal/packs"
)

// NodesPack creates the nodes pack.
func NodesPack(b Backend) *packs.BuiltinPack {
	h := &nodeHandlers{backend: b}
	return &packs.BuiltinPack{
		ID: "builtin:nodes",
		Tools: []*packs.BuiltinTool{
			packs.NewTool("getNodeContents", "Retrieve the child nodes of a repository node", h.GetNodeContents),
		},
	}
}

type nodeHandlers struct {
	backend Backend
}

type nodeContentsInput struct {
	ParentType     string `json:"parent_type" jsonschema:"description=Parent node type such as DEVC/K"`
	ParentName     string `json:"parent_name,omitempty" jsonschema:"description=Parent object name"`
	ParentTechName string `json:"parent_tech_name,omitempty"`
	UserName       string `json:"user_name,omitempty"`
}

// Node is one entry of a repository tree level.
type Node struct {
	ObjectType  string `json:"objectType" xml:"OBJECT_TYPE"`
	ObjectName  string `json:"objectName" xml:"OBJECT_NAME"`
	TechName    string `json:"techName,omitempty" xml:"TECH_NAME"`
	ObjectURI   string `json:"objectUri,omitempty" xml:"OBJECT_URI"`
	Description string `json:"description,omitempty" xml:"DESCRIPTION"`
	Expandable  string `json:"expandable,omitempty" xml:"EXPANDABLE"`
}

type nodeStructure struct {
	Nodes []Node `xml:"values>DATA>TREE_CONTENT>SEU_ADT_REPOSITORY_OBJ_NODE"`
}

func (h *nodeHandlers) GetNodeContents(ctx context.Context, in nodeContentsInput) (any, error) {
	q := url.Values{
		"parent_type":           {in.ParentType},
		"withShortDescriptions": {"true"},
	}
	if in.ParentName != "" {
		q.Set("parent_name", in.ParentName)
	}
	if in.ParentTechName != "" {
		q.Set("parent_tech_name", in.ParentTechName)
	}
	if in.UserName != "" {
		q.Set("user_name", in.UserName)
	}

	var doc nodeStructure
	err := fetchXML(ctx, h.backend, &adt.Request{
		Method: http.MethodPost,
		Path:   "/sap/bc/adt/repository/nodestructure",
		Query:  q,
		Accept: "application/vnd.sap.as+xml",
	}, &doc)
	if err != nil {
		return nil, err
	}
	if doc.Nodes == nil {
		doc.Nodes = []Node{}
	}
	return map[string]any{"nodes": doc.Nodes, "count": len(doc.Nodes)}, nil
}
