// Package builtins provides the ADT handler groups the gateway registers per session.
//
// # Overview
//
// Each group is a packs.BuiltinPack whose tools are thin pass-through
// wrappers over ADT REST endpoints. Groups close over a Backend, so a fresh
// set is built every time a session logs in and the old set becomes
// unreachable together with the old client.
//
// # Tool Packs
//
// Auth Pack (builtin:auth):
//
//   - login: Authenticate with ABAP system
//   - logout: Terminate ABAP session
//   - dropSession: Clear local session cache
//
// Discovery Pack (builtin:discovery):
//
//   - getDiscovery: Workspaces and collections from the service document
//
// Search Pack (builtin:search):
//
//   - searchObject: Repository quick search
//
// Source Pack (builtin:source):
//
//   - getObjectSource: Source text of an object
//   - getObjectStructure: Object metadata and links
//
// Nodes Pack (builtin:nodes):
//
//   - getNodeContents: Children of a repository tree node
//
// # Usage
//
//	registry, err := packs.NewRegistry(logger, builtins.All(client, lifecycle)...)
package builtins
