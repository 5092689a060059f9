// ABOUTME: Auth pack with login, logout, and dropSession tools
// ABOUTME: Delegates to the session's lifecycle owner instead of the ADT client directly

package builtins

import (
	"context"
	"fmt"

	"github.com/2389/adt-gateway/internal/adt"
	"github.com/2389/adt-gateway/internal/packs"
)

// LoginMessage is the fixed success payload of the login tool.
const LoginMessage = "Login configuration updated and session initialized."

// AuthPack creates the auth pack.
func AuthPack(control SessionControl) *packs.BuiltinPack {
	h := &authHandlers{control: control}
	return &packs.BuiltinPack{
		ID: "builtin:auth",
		Tools: []*packs.BuiltinTool{
			packs.NewTool("login", "Authenticate with ABAP system", h.Login),
			packs.NewTool("logout", "Terminate ABAP session", h.Logout),
			packs.NewTool("dropSession", "Clear local session cache", h.DropSession),
		},
	}
}

type authHandlers struct {
	control SessionControl
}

func (h *authHandlers) Login(ctx context.Context, in adt.Credentials) (any, error) {
	if err := h.control.Login(ctx, in); err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}
	return map[string]string{"message": LoginMessage}, nil
}

func (h *authHandlers) Logout(ctx context.Context, _ struct{}) (any, error) {
	if err := h.control.Logout(ctx); err != nil {
		return nil, fmt.Errorf("logout failed: %w", err)
	}
	return map[string]string{"status": "Logged out successfully"}, nil
}

func (h *authHandlers) DropSession(_ context.Context, _ struct{}) (any, error) {
	h.control.DropSession()
	return map[string]string{"status": "Session cleared"}, nil
}
