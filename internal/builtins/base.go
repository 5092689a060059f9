// ABOUTME: Shared plumbing for ADT handler groups: backend capability and XML decoding
// ABOUTME: All assembles every group in registration order

package builtins

import (
	"context"
	"encoding/xml"
	"fmt"

	"github.com/2389/adt-gateway/internal/adt"
	"github.com/2389/adt-gateway/internal/packs"
)

// Backend performs ADT REST calls on behalf of a handler group.
type Backend interface {
	Do(ctx context.Context, r *adt.Request) (*adt.Response, error)
}

// SessionControl is the login state owner the auth group delegates to.
type SessionControl interface {
	Login(ctx context.Context, overrides adt.Credentials) error
	Logout(ctx context.Context) error
	DropSession()
}

// All returns every handler group bound to the given backend, in listing order.
func All(backend Backend, control SessionControl) []packs.Pack {
	return []packs.Pack{
		AuthPack(control),
		DiscoveryPack(backend),
		SearchPack(backend),
		SourcePack(backend),
		NodesPack(backend),
	}
}

// fetchXML performs the request and decodes the XML body into out.
func fetchXML(ctx context.Context, b Backend, r *adt.Request, out any) error {
	resp, err := b.Do(ctx, r)
	if err != nil {
		return err
	}
	if err := xml.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", r.Path, err)
	}
	return nil
}
