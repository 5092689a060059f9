// Package packs provides the operation registry the gateway dispatches tool calls through.
//
// # Overview
//
// A pack is a handler group: a cohesive set of ADT operations (login and
// logout, discovery, search, source access, and so on) exposed behind one
// Handle method. The registry composes packs by concatenation and answers two
// questions: which tools exist, and which pack owns a given tool name.
//
// # Architecture
//
//   - Pack: interface implemented by every handler group
//   - BuiltinPack: in-process pack built from typed tool handlers
//   - Registry: immutable ordered name -> pack mapping
//
// # Tool Routing
//
// When a session calls a tool, the registry:
//
//  1. Looks up the tool by name
//  2. Checks the descriptor's required arguments
//  3. Forwards the call to the owning pack
//  4. Returns the pack's result or error unchanged
//
// Unknown names fail with ErrUnknownOperation before any pack is touched.
//
// # Schemas
//
// Tool argument schemas are reflected from Go structs:
//
//	type searchArgs struct {
//		Query string `json:"query" jsonschema:"description=Search pattern"`
//	}
//	tool := packs.NewTool("searchObject", "Quick search", handler)
//
// # Usage
//
//	registry, err := packs.NewRegistry(logger, authPack, searchPack)
//	result, err := registry.Dispatch(ctx, "searchObject", args)
package packs
