// ABOUTME: Unit tests for authentication context functions
// ABOUTME: Tests AuthContext, IsAdmin, and context propagation helpers

package auth

import (
	"context"
	"testing"
)

func TestAuthContext_IsAdmin(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
		want  bool
	}{
		{name: "admin role", roles: []string{"admin"}, want: true},
		{name: "admin with other roles", roles: []string{"viewer", "admin"}, want: true},
		{name: "no roles", roles: []string{}, want: false},
		{name: "nil roles", roles: nil, want: false},
		{name: "other role", roles: []string{"viewer"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &AuthContext{Subject: "test", Roles: tt.roles}
			if got := a.IsAdmin(); got != tt.want {
				t.Errorf("IsAdmin() = %v, want %v for roles %v", got, tt.want, tt.roles)
			}
		})
	}
}

func TestWithAuth_FromContext(t *testing.T) {
	a := &AuthContext{Subject: "my-editor"}
	ctx := WithAuth(context.Background(), a)

	got := FromContext(ctx)
	if got != a {
		t.Errorf("FromContext() = %v, want %v", got, a)
	}
}

func TestFromContext_Missing(t *testing.T) {
	if got := FromContext(context.Background()); got != nil {
		t.Errorf("FromContext() = %v, want nil", got)
	}
}

func TestFromContext_WrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), authContextKey{}, "not an auth context")
	if got := FromContext(ctx); got != nil {
		t.Errorf("FromContext() = %v, want nil", got)
	}
}
